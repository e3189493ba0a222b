package service

import (
	"time"

	"github.com/qs3c/hashtag_server/internal/model"
)

// LockoutGuard 登录失败锁定规则。锁定状态只由 LoginAttempts 和
// LockedUntil 推导，到期自动解锁，不依赖后台任务。
type LockoutGuard struct {
	Threshold int
	Duration  time.Duration
}

func NewLockoutGuard(threshold int, duration time.Duration) LockoutGuard {
	if threshold <= 0 {
		threshold = 5
	}
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	return LockoutGuard{Threshold: threshold, Duration: duration}
}

// IsLocked now 早于 LockedUntil 时为锁定状态
func (g LockoutGuard) IsLocked(user *model.User, now time.Time) bool {
	return user.LockedUntil != nil && now.Before(*user.LockedUntil)
}

// LockExpired 曾被锁定且锁定已到期，下一次失败重新计数
func (g LockoutGuard) LockExpired(user *model.User, now time.Time) bool {
	return user.LockedUntil != nil && !now.Before(*user.LockedUntil)
}

// ShouldLock 第 attempts 次失败后是否进入锁定
func (g LockoutGuard) ShouldLock(attempts int) bool {
	return attempts >= g.Threshold
}

func (g LockoutGuard) LockUntil(now time.Time) time.Time {
	return now.Add(g.Duration)
}
