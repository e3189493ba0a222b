package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/hashtag_server/internal/model"
)

func TestLockoutGuard(t *testing.T) {
	guard := NewLockoutGuard(5, 15*time.Minute)
	now := time.Now()
	until := now.Add(time.Minute)

	unlocked := &model.User{}
	locked := &model.User{LockedUntil: &until}

	assert.False(t, guard.IsLocked(unlocked, now))
	assert.False(t, guard.LockExpired(unlocked, now))

	assert.True(t, guard.IsLocked(locked, now))
	assert.False(t, guard.LockExpired(locked, now))

	// 恰好到期即解锁
	assert.False(t, guard.IsLocked(locked, until))
	assert.True(t, guard.LockExpired(locked, until))

	assert.False(t, guard.ShouldLock(4))
	assert.True(t, guard.ShouldLock(5))
	assert.True(t, guard.ShouldLock(6))

	assert.Equal(t, now.Add(15*time.Minute), guard.LockUntil(now))
}

func TestNewLockoutGuard_Defaults(t *testing.T) {
	guard := NewLockoutGuard(0, 0)
	assert.Equal(t, 5, guard.Threshold)
	assert.Equal(t, 15*time.Minute, guard.Duration)
}
