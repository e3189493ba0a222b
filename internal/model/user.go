package model

import (
	"time"
)

type User struct {
	ID            int64      `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"size:255;uniqueIndex;not null" json:"email"` // 始终小写存储
	Username      *string    `gorm:"size:50;uniqueIndex" json:"username,omitempty"`
	FirstName     string     `gorm:"size:100" json:"first_name"`
	LastName      string     `gorm:"size:100" json:"last_name"`
	PasswordHash  *string    `gorm:"size:255" json:"-"` // 仅第三方登录的账号为空
	GithubID      *string    `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	AvatarURL     string     `gorm:"size:500" json:"avatar_url"`
	IsActive      bool       `gorm:"default:true;not null" json:"is_active"`
	LoginAttempts int        `gorm:"default:0;not null" json:"-"`
	LockedUntil   *time.Time `json:"-"`
	EmailVerified bool       `gorm:"default:false" json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Subscription *Subscription `gorm:"foreignKey:UserID" json:"subscription,omitempty"`
}

func (User) TableName() string {
	return "users"
}
