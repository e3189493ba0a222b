package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/api/middleware"
	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/oauth"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
	"github.com/qs3c/hashtag_server/internal/service"
)

// OAuthStateStore 一次性 OAuth state
type OAuthStateStore interface {
	Generate(ctx context.Context, returnTo string) (string, error)
	Consume(ctx context.Context, state string) (string, error)
}

type AuthHandler struct {
	authService  *service.AuthService
	states       OAuthStateStore
	secureCookie bool
}

func NewAuthHandler(authService *service.AuthService, states OAuthStateStore, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		states:       states,
		secureCookie: secureCookie,
	}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setSession(c, resp)
	response.Created(c, resp)
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setSession(c, resp)
	response.Success(c, resp)
}

// Logout 注销当前令牌并清除 cookie
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(middleware.GetToken(c)); err != nil {
		writeError(c, err)
		return
	}

	h.clearSession(c)
	response.Success(c, nil)
}

// GithubAuth 跳转到 GitHub 授权页
// GET /api/v1/auth/github?return_to=/dashboard
func (h *AuthHandler) GithubAuth(c *gin.Context) {
	if !h.authService.GithubEnabled() {
		writeError(c, service.ErrOAuthDisabled)
		return
	}

	state, err := h.states.Generate(c.Request.Context(), safeReturnTo(c.Query("return_to")))
	if err != nil {
		writeError(c, errors.Join(service.ErrRepositoryUnavailable, err))
		return
	}

	url, err := h.authService.GetGithubAuthURL(state)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}

// GithubCallback GitHub 授权回调
// GET /api/v1/auth/github/callback?code=xxx&state=xxx
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "缺少授权码", nil)
		return
	}

	returnTo, err := h.states.Consume(c.Request.Context(), c.Query("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			response.ParamError(c, "授权状态无效或已过期", nil)
			return
		}
		writeError(c, errors.Join(service.ErrRepositoryUnavailable, err))
		return
	}

	resp, err := h.authService.GithubCallback(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setSession(c, resp)
	if returnTo != "" {
		c.Redirect(http.StatusFound, returnTo)
		return
	}
	response.Success(c, resp)
}

func (h *AuthHandler) setSession(c *gin.Context, resp *dto.AuthResponse) {
	maxAge := 0
	if expires, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
		maxAge = int(time.Until(expires).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, resp.Token, maxAge, "/", "", h.secureCookie, true)
}

func (h *AuthHandler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookie, true)
}

// safeReturnTo 只接受站内相对路径
func safeReturnTo(path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.ContainsAny(path, "\\\r\n") {
		return ""
	}
	return path
}
