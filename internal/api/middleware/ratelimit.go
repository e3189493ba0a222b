package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/pkg/metrics"
	"github.com/qs3c/hashtag_server/internal/pkg/ratelimit"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
	"github.com/qs3c/hashtag_server/internal/service"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitSubject 只用内存中的令牌校验确定限流对象，不访问存储。
// 令牌缺失或无效时 ok 为 false，返回免费套餐
type RateLimitSubject interface {
	RateLimitSubject(token string) (userID int64, plan service.Plan, ok bool)
}

// RateLimit 按套餐的每分钟、每小时限额限流。
// 持有有效令牌的请求按用户 ID 计数，其余按客户端 IP 计数并使用免费套餐限额；
// 放在 OptionalAuth / Auth 之前，被拒绝的请求不会读取存储
func RateLimit(limiter *ratelimit.Limiter, subjects RateLimitSubject, m *metrics.Metrics) gin.HandlerFunc {
	if m == nil {
		m = metrics.Nop()
	}
	return func(c *gin.Context) {
		userID, plan, ok := subjects.RateLimitSubject(TokenFromRequest(c))
		key := "ip:" + c.ClientIP()
		if ok {
			key = "u:" + strconv.FormatInt(userID, 10)
		}

		rules := []ratelimit.Rule{{Limit: plan.RequestsPerMinute, Window: time.Minute}}
		if plan.RequestsPerHour > 0 {
			rules = append(rules, ratelimit.Rule{Limit: plan.RequestsPerHour, Window: time.Hour})
		}

		result := limiter.AllowAll(key, rules...)
		if !result.Allowed {
			m.RateLimitDenied.WithLabelValues(scopeOf(result.Window)).Inc()
			rejectRateLimited(c, result)
			return
		}

		setRateLimitHeaders(c, result)
		c.Next()
	}
}

func scopeOf(window time.Duration) string {
	if window >= time.Hour {
		return "hour"
	}
	return "minute"
}

func setRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	c.Header(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	c.Header(HeaderRateLimitReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
}

func rejectRateLimited(c *gin.Context, res ratelimit.Result) {
	setRateLimitHeaders(c, res)
	retry := int(math.Ceil(res.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	c.Header(HeaderRetryAfter, strconv.Itoa(retry))

	response.ErrorWithData(c, http.StatusTooManyRequests, response.CodeRateLimited, "", gin.H{
		"limit":       res.Limit,
		"reset_at":    res.ResetAt.UTC().Format(time.RFC3339),
		"retry_after": retry,
	})
}
