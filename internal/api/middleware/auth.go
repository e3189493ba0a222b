package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/model"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
	"github.com/qs3c/hashtag_server/internal/service"
)

const (
	UserIDKey = "userID"
	UserKey   = "user"
	TokenKey  = "token"

	// SessionCookie 登录后下发的 HTTP-only 会话 cookie
	SessionCookie = "session"
)

// Authenticator 根据会话令牌加载当前用户
type Authenticator interface {
	GetUserFromToken(ctx context.Context, token string) (*model.User, error)
}

// Auth 认证中间件，优先读取 Authorization: Bearer，其次读取 session cookie
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			response.AuthError(c, "请提供认证信息")
			return
		}

		user, err := auth.GetUserFromToken(c.Request.Context(), token)
		if err != nil {
			abortAuth(c, err)
			return
		}

		setUser(c, user, token)
		c.Next()
	}
}

// OptionalAuth 可选认证中间件（不强制要求登录）。
// 只有缺失或无效的令牌按匿名处理；账号停用和存储不可用与 Auth 一样拒绝
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			c.Next()
			return
		}

		user, err := auth.GetUserFromToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrTokenInvalid) {
				c.Next()
				return
			}
			abortAuth(c, err)
			return
		}

		setUser(c, user, token)
		c.Next()
	}
}

// TokenFromRequest 提取会话令牌
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// 令牌失败的具体原因只记在服务端，客户端统一收到 401
func abortAuth(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInactiveAccount):
		response.InactiveError(c, service.ErrInactiveAccount.Error())
	case errors.Is(err, service.ErrRepositoryUnavailable):
		c.Header(HeaderRetryAfter, "5")
		response.UnavailableError(c, "")
	default:
		response.AuthError(c, "认证失败或已过期")
	}
}

func setUser(c *gin.Context, user *model.User, token string) {
	c.Set(UserKey, user)
	c.Set(UserIDKey, user.ID)
	c.Set(TokenKey, token)
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// GetUser 从上下文获取当前用户，匿名请求返回 nil
func GetUser(c *gin.Context) *model.User {
	v, exists := c.Get(UserKey)
	if !exists {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// GetToken 当前请求使用的会话令牌
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
