package handler

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/api/middleware"
	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
	"github.com/qs3c/hashtag_server/internal/service"
)

// 存储故障时建议客户端的重试间隔（秒）
const unavailableRetryAfter = 5

// writeError 把服务层错误映射为 HTTP 状态码和响应码
func writeError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var lockedErr *service.AccountLockedError
	var rateErr *service.RateLimitError

	switch {
	case errors.As(err, &validationErr):
		response.ParamError(c, validationErr.Error(), gin.H{
			"field":      validationErr.Field,
			"violations": validationErr.Violations,
		})
	case errors.Is(err, service.ErrEmailExists):
		response.ConflictError(c, "邮箱已被注册", gin.H{"field": "email"})
	case errors.Is(err, service.ErrUsernameExists):
		response.ConflictError(c, "用户名已被使用", gin.H{"field": "username"})
	case errors.Is(err, service.ErrConflict):
		response.ConflictError(c, service.ErrConflict.Error(), nil)
	case errors.As(err, &lockedErr):
		retry := ceilSeconds(lockedErr.RetryAfter(time.Now()))
		c.Header(middleware.HeaderRetryAfter, strconv.Itoa(retry))
		response.LockedError(c, service.ErrAccountLocked.Error(), dto.LockedInfo{
			LockedUntil:       lockedErr.Until.UTC().Format(time.RFC3339),
			RetryAfterSeconds: retry,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		response.AuthError(c, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrTokenInvalid):
		response.AuthError(c, service.ErrTokenInvalid.Error())
	case errors.Is(err, service.ErrInactiveAccount):
		response.InactiveError(c, service.ErrInactiveAccount.Error())
	case errors.As(err, &rateErr):
		retry := ceilSeconds(time.Until(rateErr.ResetAt))
		c.Header(middleware.HeaderRetryAfter, strconv.Itoa(retry))
		response.RateLimitError(c, "", gin.H{
			"limit":    rateErr.Limit,
			"reset_at": rateErr.ResetAt.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, service.ErrUsageLimitExceeded):
		response.UsageLimitError(c, service.ErrUsageLimitExceeded.Error(), gin.H{"upgrade_required": true})
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, service.ErrUserNotFound.Error())
	case errors.Is(err, service.ErrOAuthDisabled):
		response.NotFoundError(c, service.ErrOAuthDisabled.Error())
	case errors.Is(err, service.ErrOAuthFailed):
		_ = c.Error(err)
		response.ParamError(c, service.ErrOAuthFailed.Error(), nil)
	case errors.Is(err, service.ErrRepositoryUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		_ = c.Error(err)
		c.Header(middleware.HeaderRetryAfter, strconv.Itoa(unavailableRetryAfter))
		response.UnavailableError(c, service.ErrRepositoryUnavailable.Error())
	default:
		_ = c.Error(err)
		response.ServerError(c, "")
	}
}

// bindError 请求体解析失败
func bindError(c *gin.Context, err error) {
	response.ParamError(c, "请求参数格式错误", gin.H{"detail": err.Error()})
}

func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
