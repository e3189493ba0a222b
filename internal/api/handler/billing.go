package handler

import (
	"context"
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/response"
)

// HeaderWebhookSecret 计费服务回调携带的共享密钥
const HeaderWebhookSecret = "X-Webhook-Secret"

// EventPusher 计费事件入队
type EventPusher interface {
	Push(ctx context.Context, event *dto.BillingEvent) error
}

type BillingHandler struct {
	queue  EventPusher
	secret string
}

func NewBillingHandler(queue EventPusher, secret string) *BillingHandler {
	return &BillingHandler{
		queue:  queue,
		secret: secret,
	}
}

// Webhook 接收订阅变更，入队后由 worker 异步应用
// POST /api/v1/billing/webhook
func (h *BillingHandler) Webhook(c *gin.Context) {
	// 未配置密钥时拒绝所有回调
	given := c.GetHeader(HeaderWebhookSecret)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		response.AuthError(c, "签名校验失败")
		return
	}

	var event dto.BillingEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		bindError(c, err)
		return
	}

	if err := h.queue.Push(c.Request.Context(), &event); err != nil {
		_ = c.Error(err)
		response.UnavailableError(c, "")
		return
	}

	response.Accepted(c, gin.H{"event_id": event.EventID})
}
