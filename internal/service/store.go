package service

import (
	"context"
	"time"

	"github.com/qs3c/hashtag_server/internal/model"
)

// UserStore 用户数据访问，由 repository.UserRepository 实现
type UserStore interface {
	CreateWithSubscription(ctx context.Context, user *model.User, sub *model.Subscription) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGithubID(ctx context.Context, githubID string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	IncrementLoginAttempts(ctx context.Context, id int64) (int, error)
	LockUntil(ctx context.Context, id int64, until time.Time) error
	ResetLoginState(ctx context.Context, id int64) error
	RecordLogin(ctx context.Context, id int64, at time.Time) error
}

// SubscriptionStore 订阅数据访问
type SubscriptionStore interface {
	GetByUserID(ctx context.Context, userID int64) (*model.Subscription, error)
	Upsert(ctx context.Context, sub *model.Subscription) (bool, error)
}

// UsageStore 月度用量数据访问；Increment 必须是存储层的原子操作
type UsageStore interface {
	GetOrCreate(ctx context.Context, userID int64, monthYear string) (*model.UsageStats, error)
	Increment(ctx context.Context, userID int64, monthYear string, count int64) error
}

// withTimeout 为存储调用加上超时，d <= 0 时只继承调用方的 ctx
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
