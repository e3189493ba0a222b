package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/hashtag_server/internal/model"
	"github.com/qs3c/hashtag_server/internal/model/dto"
)

// UsageService 月度用量统计与额度判断
type UsageService struct {
	store   UsageStore
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewUsageService(store UsageStore, timeout time.Duration, log *zap.Logger) *UsageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UsageService{
		store:   store,
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (s *UsageService) WithClock(now func() time.Time) *UsageService {
	if now != nil {
		s.now = now
	}
	return s
}

// GetUsage 读取当月用量并与套餐额度比较，当月记录不存在时创建
func (s *UsageService) GetUsage(ctx context.Context, userID int64, plan Plan) (*dto.UsageInfo, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	month := model.MonthKey(s.now())
	stats, err := s.store.GetOrCreate(ctx, userID, month)
	if err != nil {
		return nil, unavailable("get usage", err)
	}

	return buildUsageInfo(stats, plan), nil
}

// TrackGeneration 当月 hashtags_generated 加 count、api_calls 加 1
func (s *UsageService) TrackGeneration(ctx context.Context, userID int64, count int) error {
	if count < 0 {
		return invalidField("count", "min", "数量不能为负数")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	month := model.MonthKey(s.now())
	if err := s.store.Increment(ctx, userID, month, int64(count)); err != nil {
		s.log.Error("track generation failed",
			zap.Int64("user_id", userID),
			zap.String("month", month),
			zap.Int("count", count),
			zap.Error(err),
		)
		return unavailable("track generation", err)
	}
	return nil
}

func buildUsageInfo(stats *model.UsageStats, plan Plan) *dto.UsageInfo {
	info := &dto.UsageInfo{
		MonthYear:         stats.MonthYear,
		PlanID:            plan.ID,
		HashtagsGenerated: stats.HashtagsGenerated,
		APICalls:          stats.APICalls,
		MonthlyLimit:      plan.MonthlyQuota,
		Remaining:         -1,
		IsLimitReached:    plan.LimitReached(stats.HashtagsGenerated),
	}
	if !plan.Unlimited() {
		info.Remaining = int64(plan.MonthlyQuota) - stats.HashtagsGenerated
		if info.Remaining < 0 {
			info.Remaining = 0
		}
	}
	return info
}
