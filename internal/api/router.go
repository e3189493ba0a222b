package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/api/handler"
	"github.com/qs3c/hashtag_server/internal/api/middleware"
	"github.com/qs3c/hashtag_server/internal/pkg/metrics"
	"github.com/qs3c/hashtag_server/internal/pkg/ratelimit"
	"github.com/qs3c/hashtag_server/internal/service"
)

type Router struct {
	authHandler    *handler.AuthHandler
	userHandler    *handler.UserHandler
	hashtagHandler *handler.HashtagHandler
	billingHandler *handler.BillingHandler
	healthHandler  *handler.HealthHandler
	authService    *service.AuthService
	limiter        *ratelimit.Limiter
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	log            *zap.Logger
	cfg            *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	hashtagHandler *handler.HashtagHandler,
	billingHandler *handler.BillingHandler,
	healthHandler *handler.HealthHandler,
	authService *service.AuthService,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	log *zap.Logger,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:    authHandler,
		userHandler:    userHandler,
		hashtagHandler: hashtagHandler,
		billingHandler: billingHandler,
		healthHandler:  healthHandler,
		authService:    authService,
		limiter:        limiter,
		metrics:        m,
		gatherer:       gatherer,
		log:            log,
		cfg:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Metrics(r.metrics))
	engine.Use(middleware.RequestLogger(r.log))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", r.healthHandler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	rateLimit := middleware.RateLimit(r.limiter, r.authService, r.metrics)

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 认证，按 IP 限流
		auth := api.Group("/auth")
		{
			public := auth.Group("", rateLimit)
			{
				public.POST("/register", r.authHandler.Register)
				public.POST("/login", r.authHandler.Login)
				public.GET("/github", r.authHandler.GithubAuth)
				public.GET("/github/callback", r.authHandler.GithubCallback)
			}

			// 需要认证的接口
			authenticated := auth.Group("", middleware.Auth(r.authService))
			{
				authenticated.POST("/logout", r.authHandler.Logout)
				authenticated.GET("/me", r.userHandler.Me)
				authenticated.GET("/usage", r.userHandler.Usage)
			}
		}

		// 生成接口（可选认证），先限流再读取用户，登录用户按用户限流并计量
		hashtags := api.Group("/hashtags")
		hashtags.Use(rateLimit, middleware.OptionalAuth(r.authService))
		{
			hashtags.POST("/generate", r.hashtagHandler.Generate)
		}

		// 计费回调，使用共享密钥认证
		api.POST("/billing/webhook", r.billingHandler.Webhook)
	}

	return engine
}
