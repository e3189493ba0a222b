package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/api/middleware"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
	"github.com/qs3c/hashtag_server/internal/service"
)

type UserHandler struct {
	authService *service.AuthService
}

func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{
		authService: authService,
	}
}

// Me 获取当前用户信息
// GET /api/v1/auth/me
func (h *UserHandler) Me(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		response.AuthError(c, "")
		return
	}

	plan := h.authService.ResolvePlan(user)
	response.Success(c, service.BuildUserInfo(user, plan.ID))
}

// Usage 获取当月用量
// GET /api/v1/auth/usage
func (h *UserHandler) Usage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.authService.GetUserUsage(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, info)
}
