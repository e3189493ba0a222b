package model

import (
	"time"
)

// UsageStats 每个用户每个自然月一行，计数只通过原子自增修改
type UsageStats struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	UserID            int64     `gorm:"not null;uniqueIndex:idx_usage_user_month" json:"user_id"`
	MonthYear         string    `gorm:"size:7;not null;uniqueIndex:idx_usage_user_month" json:"month_year"` // 2025-01
	HashtagsGenerated int64     `gorm:"not null;default:0" json:"hashtags_generated"`
	APICalls          int64     `gorm:"column:api_calls;not null;default:0" json:"api_calls"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (UsageStats) TableName() string {
	return "usage_stats"
}

// MonthKey 返回用于 UsageStats 的月份键（UTC）
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
