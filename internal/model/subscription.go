package model

import (
	"time"
)

// 订阅状态
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// Subscription 与 User 一对一；没有订阅记录的用户按 free 套餐处理
type Subscription struct {
	ID                 int64     `gorm:"primaryKey" json:"id"`
	UserID             int64     `gorm:"not null;uniqueIndex" json:"user_id"`
	PlanID             string    `gorm:"size:20;not null;default:free" json:"plan_id"` // free, pro, enterprise
	Status             string    `gorm:"size:20;not null;default:active;index" json:"status"`
	CurrentPeriodStart time.Time `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time `gorm:"not null;index" json:"current_period_end"`
	LastEventSeq       int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// IsCurrent 订阅是否处于有效期内
func (s *Subscription) IsCurrent(now time.Time) bool {
	if s == nil || s.Status != SubscriptionActive {
		return false
	}
	return now.Before(s.CurrentPeriodEnd)
}
