package dto

// RegisterRequest 注册请求；格式与密码策略由服务层校验
type RegisterRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty" binding:"max=100"`
	LastName  string `json:"last_name,omitempty" binding:"max=100"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 注册/登录响应
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt string    `json:"expires_at"`
	User      *UserInfo `json:"user"`
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID            int64   `json:"id"`
	Email         string  `json:"email"`
	Username      string  `json:"username,omitempty"`
	FirstName     string  `json:"first_name,omitempty"`
	LastName      string  `json:"last_name,omitempty"`
	AvatarURL     string  `json:"avatar_url,omitempty"`
	PlanID        string  `json:"plan_id"`
	EmailVerified bool    `json:"email_verified"`
	LoginAttempts int     `json:"login_attempts"`
	LockedUntil   *string `json:"locked_until,omitempty"`
	LastLoginAt   *string `json:"last_login_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// LockedInfo 账号锁定时返回的数据
type LockedInfo struct {
	LockedUntil       string `json:"locked_until"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}
