package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/internal/pkg/password"
)

var (
	ErrValidation            = errors.New("参数不合法")
	ErrConflict              = errors.New("邮箱或用户名已被使用")
	ErrEmailExists           = fmt.Errorf("%w: email", ErrConflict)
	ErrUsernameExists        = fmt.Errorf("%w: username", ErrConflict)
	ErrInvalidCredentials    = errors.New("邮箱或密码错误")
	ErrAccountLocked         = errors.New("账号已锁定，请稍后再试")
	ErrInactiveAccount       = errors.New("账号已停用，请联系客服")
	ErrRateLimitExceeded     = errors.New("请求过于频繁")
	ErrUsageLimitExceeded    = errors.New("本月额度已用完，请升级套餐")
	ErrTokenInvalid          = errors.New("登录已失效，请重新登录")
	ErrRepositoryUnavailable = errors.New("服务暂时不可用，请稍后重试")
	ErrUserNotFound          = errors.New("用户不存在")
	ErrOAuthDisabled         = errors.New("未启用第三方登录")
	ErrOAuthFailed           = errors.New("第三方登录失败")
)

// ValidationError 输入校验失败，Violations 按字段列出原因
type ValidationError struct {
	Field      string
	Violations []password.Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidField(field, code, message string) *ValidationError {
	return &ValidationError{
		Field:      field,
		Violations: []password.Violation{{Code: code, Message: message}},
	}
}

// AccountLockedError 账号在 Until 之前拒绝所有登录
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// RetryAfter 距离解锁的剩余时间
func (e *AccountLockedError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RateLimitError 超出请求频率，ResetAt 之后可以重试
type RateLimitError struct {
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit %d exceeded, reset at %s", e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// unavailable 把存储层故障统一包装为 ErrRepositoryUnavailable，保留原始错误
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRepositoryUnavailable, op, err)
}

// isNotFound 记录不存在；超时和取消不算
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
