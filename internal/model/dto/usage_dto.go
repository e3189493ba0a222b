package dto

// UsageInfo 当月用量
type UsageInfo struct {
	MonthYear         string `json:"month_year"`
	PlanID            string `json:"plan_id"`
	HashtagsGenerated int64  `json:"hashtags_generated"`
	APICalls          int64  `json:"api_calls"`
	MonthlyLimit      int    `json:"monthly_limit"` // -1 表示不限量
	Remaining         int64  `json:"remaining"`     // 不限量时为 -1
	IsLimitReached    bool   `json:"is_limit_reached"`
}

// GenerateRequest 话题标签生成请求
type GenerateRequest struct {
	Text  string `json:"text" binding:"required,max=2000"`
	Count int    `json:"count" binding:"omitempty,min=1,max=30"`
}

// GenerateResponse 话题标签生成响应
type GenerateResponse struct {
	Hashtags []string   `json:"hashtags"`
	Usage    *UsageInfo `json:"usage,omitempty"`
}

// UsageLimitInfo 当月额度用尽时返回的数据
type UsageLimitInfo struct {
	UpgradeRequired bool   `json:"upgrade_required"`
	PlanID          string `json:"plan_id"`
	MonthlyLimit    int    `json:"monthly_limit"`
}
