package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/api"
	"github.com/qs3c/hashtag_server/internal/api/handler"
	"github.com/qs3c/hashtag_server/internal/database"
	"github.com/qs3c/hashtag_server/internal/pkg/cron"
	"github.com/qs3c/hashtag_server/internal/pkg/jwt"
	"github.com/qs3c/hashtag_server/internal/pkg/logger"
	"github.com/qs3c/hashtag_server/internal/pkg/metrics"
	"github.com/qs3c/hashtag_server/internal/pkg/oauth"
	"github.com/qs3c/hashtag_server/internal/pkg/queue"
	"github.com/qs3c/hashtag_server/internal/pkg/ratelimit"
	"github.com/qs3c/hashtag_server/internal/repository"
	"github.com/qs3c/hashtag_server/internal/service"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 初始化数据库
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	log.Info("database connected", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	log.Info("redis connected")

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		log.Fatal("failed to register metrics", zap.Error(err))
	}

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	// 初始化 Service
	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer).
		WithDenylist(jwt.NewDenylist(10 * time.Minute))
	usageService := service.NewUsageService(usageRepo, cfg.Auth.RepoTimeout, log)
	authService := service.NewAuthService(cfg, userRepo, subRepo, usageService, tokens, log).
		WithMetrics(m)
	hashtagService := service.NewHashtagService(authService, service.NewKeywordGenerator(), log)

	limiter := ratelimit.New(ratelimit.Options{
		IdleWindows: cfg.RateLimit.IdleWindows,
		Shards:      cfg.RateLimit.Shards,
	})

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService, oauth.NewStateStore(rdb), cfg.Server.SecureCookie)
	userHandler := handler.NewUserHandler(authService)
	hashtagHandler := handler.NewHashtagHandler(hashtagService, authService)
	billingHandler := handler.NewBillingHandler(queue.NewQueue(rdb, cfg.Billing.Queue), cfg.Billing.WebhookSecret)
	healthHandler := handler.NewHealthHandler(map[string]handler.Checker{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})
	if cfg.Billing.WebhookSecret == "" {
		log.Warn("billing.webhook_secret is empty, billing webhook will reject all requests")
	}

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		userHandler,
		hashtagHandler,
		billingHandler,
		healthHandler,
		authService,
		limiter,
		m,
		registry,
		log,
		cfg,
	)

	// 限流器定期清理
	cronService := cron.NewService(limiter, nil, cfg.RateLimit.SweepInterval, log)
	cronService.Start()
	defer cronService.Stop()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	_ = rdb.Close()
	log.Info("server shutdown complete")
}
