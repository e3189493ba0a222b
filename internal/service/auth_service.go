package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/model"
	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/jwt"
	"github.com/qs3c/hashtag_server/internal/pkg/logger"
	"github.com/qs3c/hashtag_server/internal/pkg/metrics"
	"github.com/qs3c/hashtag_server/internal/pkg/oauth"
	"github.com/qs3c/hashtag_server/internal/pkg/password"
)

// GithubProvider GitHub 登录，由 oauth.GithubOAuth 实现
type GithubProvider interface {
	Enabled() bool
	AuthURL(state string) string
	FetchUser(ctx context.Context, code string) (*oauth.GithubUser, error)
}

// SubscriptionUpdate 计费事件携带的订阅变更
type SubscriptionUpdate struct {
	UserID   int64
	PlanID   string
	Status   string // 为空时视为 active
	Sequence int64  // 0 表示事件不带序号
}

type AuthService struct {
	users    UserStore
	subs     SubscriptionStore
	usage    *UsageService
	plans    *PlanRegistry
	tokens   *jwt.Manager
	hasher   *password.Hasher
	policy   password.Policy
	guard    LockoutGuard
	github   GithubProvider
	validate *validator.Validate
	metrics  *metrics.Metrics
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	cfg *config.Config,
	users UserStore,
	subs SubscriptionStore,
	usage *UsageService,
	tokens *jwt.Manager,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:  users,
		subs:   subs,
		usage:  usage,
		plans:  NewPlanRegistry(cfg.Plans),
		tokens: tokens,
		hasher: password.NewHasher(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency),
		policy: policyFromConfig(cfg.Password),
		guard:  NewLockoutGuard(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration),
		github: oauth.NewGithubOAuth(
			cfg.OAuth.Github.ClientID,
			cfg.OAuth.Github.ClientSecret,
			cfg.OAuth.Github.RedirectURI,
		),
		validate: validator.New(),
		metrics:  metrics.Nop(),
		log:      log,
		timeout:  cfg.Auth.RepoTimeout,
		now:      time.Now,
	}
}

func policyFromConfig(pc config.PasswordConfig) password.Policy {
	if pc.MinLength <= 0 {
		return password.DefaultPolicy()
	}
	return password.Policy{
		MinLength:      pc.MinLength,
		MaxLength:      pc.MaxLength,
		RequireUpper:   pc.RequireUpper,
		RequireLower:   pc.RequireLower,
		RequireDigit:   pc.RequireDigit,
		RequireSpecial: pc.RequireSpecial,
	}
}

// WithMetrics 设置指标
func (s *AuthService) WithMetrics(m *metrics.Metrics) *AuthService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// WithGithub 替换 GitHub 登录实现
func (s *AuthService) WithGithub(g GithubProvider) *AuthService {
	s.github = g
	return s
}

// WithClock 替换时钟（测试用）
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Plans 套餐表
func (s *AuthService) Plans() *PlanRegistry {
	return s.plans
}

// Register 用户注册：用户和 free 订阅在同一事务中创建
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if err := s.validate.Var(email, "required,email,max=255"); err != nil {
		return nil, invalidField("email", "email", "邮箱格式不正确")
	}
	username := strings.TrimSpace(req.Username)
	if err := s.validate.Var(username, "omitempty,min=3,max=50,alphanum"); err != nil {
		return nil, invalidField("username", "username", "用户名需为 3-50 位字母或数字")
	}
	if ok, violations := s.policy.Validate(req.Password); !ok {
		return nil, &ValidationError{Field: "password", Violations: violations}
	}

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	// 检查邮箱是否存在
	exists, err := s.users.ExistsByEmail(storeCtx, email)
	if err != nil {
		return nil, unavailable("check email", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	// 检查用户名是否存在
	if username != "" {
		exists, err = s.users.ExistsByUsername(storeCtx, username)
		if err != nil {
			return nil, unavailable("check username", err)
		}
		if exists {
			return nil, ErrUsernameExists
		}
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		Email:         email,
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		PasswordHash:  &hash,
		IsActive:      true,
		EmailVerified: false,
	}
	if username != "" {
		user.Username = &username
	}

	createCtx, cancelCreate := withTimeout(ctx, s.timeout)
	defer cancelCreate()

	if err := s.users.CreateWithSubscription(createCtx, user, s.newSubscription(config.PlanFree, now)); err != nil {
		// 并发注册同一邮箱时由唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, unavailable("create user", err)
	}

	s.log.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.String("email", logger.MaskEmail(email)),
	)

	return s.authResponse(user, s.plans.Free())
}

// Login 用户登录。邮箱不存在和密码错误返回同一个错误；
// 锁定期间即使密码正确也返回 AccountLockedError
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByEmail(storeCtx, email)
	if err != nil {
		if isNotFound(err) {
			// 不存在的账号也做一次哈希比较，避免响应时间暴露邮箱是否注册
			_, _ = s.hasher.Verify(ctx, req.Password, s.dummy())
			s.metrics.Logins.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidCredentials
		}
		s.metrics.Logins.WithLabelValues("error").Inc()
		return nil, unavailable("get user", err)
	}

	now := s.now()
	if s.guard.IsLocked(user, now) {
		s.metrics.Logins.WithLabelValues("locked").Inc()
		return nil, &AccountLockedError{Until: *user.LockedUntil}
	}

	hash := s.dummy()
	if user.PasswordHash != nil {
		hash = *user.PasswordHash
	}
	ok, err := s.hasher.Verify(ctx, req.Password, hash)
	if err != nil {
		s.metrics.Logins.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok || user.PasswordHash == nil {
		return nil, s.recordFailure(ctx, user, now)
	}

	if !user.IsActive {
		s.metrics.Logins.WithLabelValues("inactive").Inc()
		return nil, ErrInactiveAccount
	}

	loginCtx, cancelLogin := withTimeout(ctx, s.timeout)
	defer cancelLogin()

	if err := s.users.RecordLogin(loginCtx, user.ID, now); err != nil {
		s.metrics.Logins.WithLabelValues("error").Inc()
		return nil, unavailable("record login", err)
	}
	user.LoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	s.metrics.Logins.WithLabelValues("success").Inc()
	return s.authResponse(user, s.plans.Resolve(user.Subscription, now))
}

// recordFailure 失败次数加一，达到阈值时锁定；存储不可用时同样拒绝登录
func (s *AuthService) recordFailure(ctx context.Context, user *model.User, now time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	// 上一次锁定已过期，重新开始计数
	if s.guard.LockExpired(user, now) {
		if err := s.users.ResetLoginState(ctx, user.ID); err != nil {
			s.metrics.Logins.WithLabelValues("error").Inc()
			return unavailable("reset login state", err)
		}
	}

	attempts, err := s.users.IncrementLoginAttempts(ctx, user.ID)
	if err != nil {
		s.metrics.Logins.WithLabelValues("error").Inc()
		return unavailable("increment login attempts", err)
	}

	if !s.guard.ShouldLock(attempts) {
		s.metrics.Logins.WithLabelValues("invalid").Inc()
		return ErrInvalidCredentials
	}

	until := s.guard.LockUntil(now)
	if err := s.users.LockUntil(ctx, user.ID, until); err != nil {
		s.metrics.Logins.WithLabelValues("error").Inc()
		return unavailable("lock account", err)
	}

	s.log.Warn("account locked",
		zap.Int64("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
		zap.Int("attempts", attempts),
		zap.Time("until", until),
	)
	s.metrics.Logins.WithLabelValues("locked").Inc()
	return &AccountLockedError{Until: until}
}

// Logout 把令牌加入注销名单
func (s *AuthService) Logout(token string) error {
	claims, err := s.verifyToken(token)
	if err != nil {
		return err
	}
	s.tokens.Revoke(claims)
	return nil
}

// GetUserFromToken 校验令牌并重新读取用户；令牌签发后被停用的账号同样拒绝
func (s *AuthService) GetUserFromToken(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.verifyToken(token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, unavailable("get user", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	return user, nil
}

func (s *AuthService) verifyToken(token string) (*jwt.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		reason := jwt.Reason(err)
		s.metrics.TokenFailures.WithLabelValues(reason).Inc()
		s.log.Debug("token rejected", zap.String("reason", reason))
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// RateLimitSubject 只校验令牌（签名、有效期、注销名单），不读存储，
// 返回令牌中的用户和签发时的套餐。令牌缺失或无效时按匿名免费套餐处理
func (s *AuthService) RateLimitSubject(token string) (int64, Plan, bool) {
	if token == "" {
		return 0, s.plans.Free(), false
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return 0, s.plans.Free(), false
	}
	plan, ok := s.plans.Get(claims.PlanID)
	if !ok {
		plan = s.plans.Free()
	}
	return claims.UserID, plan, true
}

// ResolvePlan 用户当前生效的套餐
func (s *AuthService) ResolvePlan(user *model.User) Plan {
	if user == nil {
		return s.plans.Free()
	}
	return s.plans.Resolve(user.Subscription, s.now())
}

// GetUserUsage 当月用量，额度按用户当前订阅计算
func (s *AuthService) GetUserUsage(ctx context.Context, userID int64) (*dto.UsageInfo, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.usage.GetUsage(ctx, user.ID, s.ResolvePlan(user))
}

// CheckUsage 消耗额度前调用；已达上限返回 ErrUsageLimitExceeded
func (s *AuthService) CheckUsage(ctx context.Context, user *model.User) (*dto.UsageInfo, error) {
	info, err := s.usage.GetUsage(ctx, user.ID, s.ResolvePlan(user))
	if err != nil {
		return nil, err
	}
	if info.IsLimitReached {
		s.metrics.UsageLimitDenied.Inc()
		return info, ErrUsageLimitExceeded
	}
	return info, nil
}

// TrackHashtagGeneration 记录一次生成
func (s *AuthService) TrackHashtagGeneration(ctx context.Context, userID int64, count int) error {
	return s.usage.TrackGeneration(ctx, userID, count)
}

// UpdateSubscription 计费回调调用。重复投递只刷新计费周期；
// 带序号的事件比已应用的旧时忽略，返回 applied=false
func (s *AuthService) UpdateSubscription(ctx context.Context, upd SubscriptionUpdate) (*dto.SubscriptionInfo, bool, error) {
	if _, ok := s.plans.Get(upd.PlanID); !ok {
		return nil, false, invalidField("plan_id", "plan", "未知套餐")
	}
	status := upd.Status
	switch status {
	case "":
		status = model.SubscriptionActive
	case model.SubscriptionActive, model.SubscriptionCancelled:
	default:
		return nil, false, invalidField("status", "status", "未知订阅状态")
	}

	if _, err := s.getUser(ctx, upd.UserID); err != nil {
		return nil, false, err
	}

	sub := s.newSubscription(upd.PlanID, s.now())
	sub.UserID = upd.UserID
	sub.Status = status
	sub.LastEventSeq = upd.Sequence

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	applied, err := s.subs.Upsert(storeCtx, sub)
	if err != nil {
		return nil, false, unavailable("upsert subscription", err)
	}
	if !applied {
		s.log.Info("stale subscription event ignored",
			zap.Int64("user_id", upd.UserID),
			zap.Int64("sequence", upd.Sequence),
		)
	}

	current, err := s.subs.GetByUserID(storeCtx, upd.UserID)
	if err != nil {
		return nil, applied, unavailable("get subscription", err)
	}
	return buildSubscriptionInfo(current), applied, nil
}

// GithubEnabled 是否启用 GitHub 登录
func (s *AuthService) GithubEnabled() bool {
	return s.github != nil && s.github.Enabled()
}

// GetGithubAuthURL 获取 GitHub 授权 URL
func (s *AuthService) GetGithubAuthURL(state string) (string, error) {
	if !s.GithubEnabled() {
		return "", ErrOAuthDisabled
	}
	return s.github.AuthURL(state), nil
}

// GithubCallback 处理 GitHub OAuth 回调：按 GitHub ID 查找，其次按已验证邮箱关联，
// 都没有时创建无密码账号
func (s *AuthService) GithubCallback(ctx context.Context, code string) (*dto.AuthResponse, error) {
	if !s.GithubEnabled() {
		return nil, ErrOAuthDisabled
	}

	ghUser, err := s.github.FetchUser(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOAuthFailed, err)
	}
	githubID := strconv.FormatInt(ghUser.ID, 10)

	storeCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByGithubID(storeCtx, githubID)
	if err != nil && !isNotFound(err) {
		return nil, unavailable("get user by github id", err)
	}

	if user == nil && ghUser.Email != "" {
		user, err = s.users.GetByEmail(storeCtx, normalizeEmail(ghUser.Email))
		if err != nil && !isNotFound(err) {
			return nil, unavailable("get user by email", err)
		}
		if user != nil {
			if err := s.users.UpdateFields(storeCtx, user.ID, map[string]interface{}{
				"github_id":      githubID,
				"email_verified": true,
			}); err != nil {
				return nil, unavailable("link github", err)
			}
			user.GithubID = &githubID
			user.EmailVerified = true
		}
	}

	now := s.now()
	if user == nil {
		user, err = s.createGithubUser(storeCtx, ghUser, githubID, now)
		if err != nil {
			return nil, err
		}
	}

	if s.guard.IsLocked(user, now) {
		return nil, &AccountLockedError{Until: *user.LockedUntil}
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	if err := s.users.RecordLogin(storeCtx, user.ID, now); err != nil {
		return nil, unavailable("record login", err)
	}
	user.LoginAttempts = 0
	user.LastLoginAt = &now

	s.metrics.Logins.WithLabelValues("success").Inc()
	return s.authResponse(user, s.plans.Resolve(user.Subscription, now))
}

func (s *AuthService) createGithubUser(ctx context.Context, ghUser *oauth.GithubUser, githubID string, now time.Time) (*model.User, error) {
	email := ghUser.Email
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", ghUser.ID, ghUser.Login)
	}

	user := &model.User{
		Email:         normalizeEmail(email),
		GithubID:      &githubID,
		AvatarURL:     ghUser.AvatarURL,
		FirstName:     ghUser.Name,
		IsActive:      true,
		EmailVerified: true,
	}

	// 确保用户名唯一
	username := ghUser.Login
	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, unavailable("check username", err)
	}
	if exists {
		username = fmt.Sprintf("%s_%s", ghUser.Login, githubID)
	}
	user.Username = &username

	if err := s.users.CreateWithSubscription(ctx, user, s.newSubscription(config.PlanFree, now)); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, unavailable("create github user", err)
	}

	s.log.Info("github user created",
		zap.Int64("user_id", user.ID),
		zap.String("github_id", githubID),
	)
	return user, nil
}

func (s *AuthService) getUser(ctx context.Context, userID int64) (*model.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, unavailable("get user", err)
	}
	return user, nil
}

func (s *AuthService) newSubscription(planID string, now time.Time) *model.Subscription {
	plan, ok := s.plans.Get(planID)
	if !ok {
		plan = s.plans.Free()
	}
	now = now.UTC()
	return &model.Subscription{
		PlanID:             plan.ID,
		Status:             model.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, plan.PeriodDays),
	}
}

func (s *AuthService) authResponse(user *model.User, plan Plan) (*dto.AuthResponse, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email, plan.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &dto.AuthResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
		User:      BuildUserInfo(user, plan.ID),
	}, nil
}

// dummy 用于不存在账号的占位哈希，首次使用时生成
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(context.Background(), "placeholder-Passw0rd")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// BuildUserInfo 转换为前端使用的用户信息
func BuildUserInfo(user *model.User, planID string) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:            user.ID,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		AvatarURL:     user.AvatarURL,
		PlanID:        planID,
		EmailVerified: user.EmailVerified,
		LoginAttempts: user.LoginAttempts,
		CreatedAt:     user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.Username != nil {
		info.Username = *user.Username
	}
	if user.LockedUntil != nil {
		v := user.LockedUntil.UTC().Format(time.RFC3339)
		info.LockedUntil = &v
	}
	if user.LastLoginAt != nil {
		v := user.LastLoginAt.UTC().Format(time.RFC3339)
		info.LastLoginAt = &v
	}
	return info
}

func buildSubscriptionInfo(sub *model.Subscription) *dto.SubscriptionInfo {
	return &dto.SubscriptionInfo{
		UserID:             sub.UserID,
		PlanID:             sub.PlanID,
		Status:             sub.Status,
		CurrentPeriodStart: sub.CurrentPeriodStart.UTC().Format(time.RFC3339),
		CurrentPeriodEnd:   sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
