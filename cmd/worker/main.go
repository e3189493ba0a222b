package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/database"
	"github.com/qs3c/hashtag_server/internal/pkg/cron"
	"github.com/qs3c/hashtag_server/internal/pkg/jwt"
	"github.com/qs3c/hashtag_server/internal/pkg/logger"
	"github.com/qs3c/hashtag_server/internal/pkg/queue"
	"github.com/qs3c/hashtag_server/internal/repository"
	"github.com/qs3c/hashtag_server/internal/service"
	"github.com/qs3c/hashtag_server/internal/worker"
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
	log.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	log.Info("redis connected")

	// 初始化 Repository 和 Service
	subRepo := repository.NewSubscriptionRepository(db)
	usageService := service.NewUsageService(repository.NewUsageRepository(db), cfg.Auth.RepoTimeout, log)
	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	authService := service.NewAuthService(cfg, repository.NewUserRepository(db), subRepo, usageService, tokens, log)

	// 创建事件处理器
	billingQueue := queue.NewQueue(rdb, cfg.Billing.Queue)
	processor := worker.NewProcessor(authService, billingQueue, log)

	// 订阅过期任务只在 worker 中运行
	cronService := cron.NewService(nil, subRepo, time.Minute, log)
	cronService.Start()

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		cancel()
	}()

	log.Info("worker started",
		zap.String("queue", cfg.Billing.Queue),
		zap.Int("max_workers", cfg.Billing.MaxWorkers),
	)

	// 阻塞直到全部 worker 退出
	processor.Run(ctx, cfg.Billing.MaxWorkers)

	cronService.Stop()
	_ = rdb.Close()
	log.Info("worker shutdown complete")
}
