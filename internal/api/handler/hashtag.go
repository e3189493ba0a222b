package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/api/middleware"
	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
	"github.com/qs3c/hashtag_server/internal/service"
)

type HashtagHandler struct {
	hashtagService *service.HashtagService
	authService    *service.AuthService
}

func NewHashtagHandler(hashtagService *service.HashtagService, authService *service.AuthService) *HashtagHandler {
	return &HashtagHandler{
		hashtagService: hashtagService,
		authService:    authService,
	}
}

// Generate 生成话题标签，登录用户按套餐计量
// POST /api/v1/hashtags/generate
func (h *HashtagHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user := middleware.GetUser(c)
	resp, err := h.hashtagService.Generate(c.Request.Context(), user, &req)
	if err != nil {
		if errors.Is(err, service.ErrUsageLimitExceeded) && user != nil {
			plan := h.authService.ResolvePlan(user)
			response.UsageLimitError(c, service.ErrUsageLimitExceeded.Error(), dto.UsageLimitInfo{
				UpgradeRequired: true,
				PlanID:          plan.ID,
				MonthlyLimit:    plan.MonthlyQuota,
			})
			return
		}
		writeError(c, err)
		return
	}

	response.Success(c, resp)
}
