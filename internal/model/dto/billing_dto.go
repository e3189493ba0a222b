package dto

// BillingEvent 计费服务推送的订阅变更事件
type BillingEvent struct {
	EventID  string `json:"event_id" binding:"required,max=100"`
	UserID   int64  `json:"user_id" binding:"required,min=1"`
	PlanID   string `json:"plan_id" binding:"required,oneof=free pro enterprise"`
	Status   string `json:"status" binding:"omitempty,oneof=active cancelled"`
	Sequence int64  `json:"sequence" binding:"omitempty,min=0"`
}

// SubscriptionInfo 订阅信息
type SubscriptionInfo struct {
	UserID             int64  `json:"user_id"`
	PlanID             string `json:"plan_id"`
	Status             string `json:"status"`
	CurrentPeriodStart string `json:"current_period_start"`
	CurrentPeriodEnd   string `json:"current_period_end"`
}
