package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/hashtag_server/config"
	"github.com/qs3c/hashtag_server/internal/database"
	"github.com/qs3c/hashtag_server/internal/model"
	"github.com/qs3c/hashtag_server/internal/pkg/logger"
	"github.com/qs3c/hashtag_server/internal/repository"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, only report what would change")
	keepMonths    = flag.Int("keep-months", 12, "Months of usage history to keep, including the current month")
	cleanUsage    = flag.Bool("clean-usage", true, "Delete usage stats older than keep-months")
	expireEnded   = flag.Bool("expire-subscriptions", true, "Mark cancelled subscriptions whose period ended as expired")
	configPathArg = flag.String("config", "", "Config file path (defaults to $CONFIG_PATH or config.yaml)")
)

func main() {
	flag.Parse()

	// 加载配置
	configPath := *configPathArg
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log, cfg.Server.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting cleanup task", zap.Bool("dry_run", *dryRun))

	// 连接数据库
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()

	// 1. 清理历史用量
	if *cleanUsage {
		if *keepMonths < 1 {
			log.Fatal("keep-months must be at least 1")
		}
		cutoff := model.MonthKey(now.AddDate(0, -(*keepMonths - 1), 0))
		n, err := cleanUsageStats(ctx, repository.NewUsageRepository(db), cutoff, *dryRun)
		if err != nil {
			log.Fatal("clean usage stats failed", zap.Error(err))
		}
		log.Info("usage stats", zap.String("before", cutoff), zap.Int64("rows", n))
	}

	// 2. 标记过期订阅
	if *expireEnded {
		n, err := expireSubscriptions(ctx, repository.NewSubscriptionRepository(db), now, *dryRun)
		if err != nil {
			log.Fatal("expire subscriptions failed", zap.Error(err))
		}
		log.Info("subscriptions expired", zap.Int64("rows", n))
	}

	if *dryRun {
		log.Info("dry run mode, nothing was changed; run with -dry-run=false to apply")
	} else {
		log.Info("cleanup completed")
	}
}

func cleanUsageStats(ctx context.Context, repo *repository.UsageRepository, cutoff string, dryRun bool) (int64, error) {
	if dryRun {
		return repo.CountBefore(ctx, cutoff)
	}
	return repo.DeleteBefore(ctx, cutoff)
}

func expireSubscriptions(ctx context.Context, repo *repository.SubscriptionRepository, now time.Time, dryRun bool) (int64, error) {
	if dryRun {
		return repo.CountEnded(ctx, now)
	}
	return repo.ExpireEnded(ctx, now)
}
