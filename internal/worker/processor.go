package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/queue"
	"github.com/qs3c/hashtag_server/internal/service"
)

// SubscriptionUpdater 应用订阅变更
type SubscriptionUpdater interface {
	UpdateSubscription(ctx context.Context, upd service.SubscriptionUpdate) (*dto.SubscriptionInfo, bool, error)
}

// EventQueue 计费事件队列
type EventQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (*dto.BillingEvent, error)
	Retry(ctx context.Context, event *dto.BillingEvent) error
	DeadLetter(ctx context.Context, event *dto.BillingEvent) error
}

// Processor 计费事件处理器
type Processor struct {
	updater    SubscriptionUpdater
	queue      EventQueue
	popTimeout time.Duration
	retryDelay time.Duration
	log        *zap.Logger
}

// NewProcessor 创建计费事件处理器
func NewProcessor(updater SubscriptionUpdater, q EventQueue, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		updater:    updater,
		queue:      q,
		popTimeout: 5 * time.Second,
		retryDelay: time.Second,
		log:        log,
	}
}

// Process 应用单个事件。存储不可用时返回错误由调用方重试，
// 其余失败（未知用户、非法套餐）不会因重试而成功，直接进入死信
func (p *Processor) Process(ctx context.Context, event *dto.BillingEvent) error {
	info, applied, err := p.updater.UpdateSubscription(ctx, service.SubscriptionUpdate{
		UserID:   event.UserID,
		PlanID:   event.PlanID,
		Status:   event.Status,
		Sequence: event.Sequence,
	})
	if err != nil {
		if errors.Is(err, service.ErrRepositoryUnavailable) || ctx.Err() != nil {
			return fmt.Errorf("event %s: %w", event.EventID, err)
		}
		p.log.Warn("billing event rejected",
			zap.String("event_id", event.EventID),
			zap.Int64("user_id", event.UserID),
			zap.Error(err),
		)
		if dlErr := p.queue.DeadLetter(ctx, event); dlErr != nil {
			return fmt.Errorf("dead letter event %s: %w", event.EventID, dlErr)
		}
		return nil
	}

	p.log.Info("billing event processed",
		zap.String("event_id", event.EventID),
		zap.Int64("user_id", info.UserID),
		zap.String("plan_id", info.PlanID),
		zap.String("status", info.Status),
		zap.Bool("applied", applied),
	)
	return nil
}

// Run 启动 workers 个消费协程，阻塞直到 ctx 取消且全部协程退出
func (p *Processor) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.loop(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

func (p *Processor) loop(ctx context.Context, workerID int) {
	log := p.log.With(zap.Int("worker", workerID))
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		default:
		}

		event, err := p.queue.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, queue.ErrMalformedEvent) {
				log.Warn("malformed event moved to dead letter", zap.Error(err))
				continue
			}
			// Redis 不可用时等待后再取，避免空转刷日志
			log.Error("failed to pop event", zap.Error(err))
			if !p.wait(ctx) {
				return
			}
			continue
		}
		if event == nil {
			continue // 超时，继续等待
		}

		if err := p.Process(ctx, event); err != nil {
			log.Error("billing event failed, requeued", zap.Error(err))
			// 放回队列前稍等，避免存储故障时空转
			p.wait(ctx)
			if rqErr := p.queue.Retry(context.WithoutCancel(ctx), event); rqErr != nil {
				log.Error("failed to requeue event", zap.String("event_id", event.EventID), zap.Error(rqErr))
			}
		}
	}
}

// wait 等待 retryDelay，ctx 取消时提前返回 false
func (p *Processor) wait(ctx context.Context) bool {
	timer := time.NewTimer(p.retryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
