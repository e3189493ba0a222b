package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/internal/model"
)

// TestPassword 测试用户的默认密码
const TestPassword = "Passw0rd1"

var (
	seq          int64
	testPassHash string
)

func init() {
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	testPassHash = string(hash)
}

// TestUser 创建测试用户，默认密码为 TestPassword
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := atomic.AddInt64(&seq, 1)
	passwordHash := testPassHash
	user := &model.User{
		Email:         fmt.Sprintf("test_%d@example.com", n),
		PasswordHash:  &passwordHash,
		IsActive:      true,
		EmailVerified: true,
	}

	for _, opt := range opts {
		opt(user)
	}

	active := user.IsActive
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	// is_active 带默认值，false 需要单独更新
	if !active {
		if err := db.Model(user).Update("is_active", false).Error; err != nil {
			t.Fatalf("Failed to deactivate test user: %v", err)
		}
		user.IsActive = false
	}

	return user
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = &username
	}
}

// WithoutPassword 仅第三方登录的账号
func WithoutPassword() func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = nil
	}
}

// WithInactive 设置为停用账号
func WithInactive() func(*model.User) {
	return func(u *model.User) {
		u.IsActive = false
	}
}

// WithLoginAttempts 设置失败次数
func WithLoginAttempts(n int) func(*model.User) {
	return func(u *model.User) {
		u.LoginAttempts = n
	}
}

// WithLockedUntil 设置锁定截止时间
func WithLockedUntil(until time.Time) func(*model.User) {
	return func(u *model.User) {
		u.LockedUntil = &until
	}
}

// WithGithubID 设置 GitHub ID
func WithGithubID(id string) func(*model.User) {
	return func(u *model.User) {
		u.GithubID = &id
	}
}

// TestSubscription 创建测试订阅，默认有效期 30 天
func TestSubscription(t *testing.T, db *gorm.DB, userID int64, planID string, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	now := time.Now().UTC()
	sub := &model.Subscription{
		UserID:             userID,
		PlanID:             planID,
		Status:             model.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, 30),
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithStatus 设置订阅状态
func WithStatus(status string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}

// WithPeriodEnd 设置订阅周期结束时间
func WithPeriodEnd(end time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.CurrentPeriodEnd = end
	}
}

// TestUsage 创建当月用量记录
func TestUsage(t *testing.T, db *gorm.DB, userID int64, generated int64) *model.UsageStats {
	t.Helper()

	usage := &model.UsageStats{
		UserID:            userID,
		MonthYear:         model.MonthKey(time.Now()),
		HashtagsGenerated: generated,
		APICalls:          1,
	}

	if err := db.Create(usage).Error; err != nil {
		t.Fatalf("Failed to create test usage: %v", err)
	}

	return usage
}
