package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper 清理限流器中长期空闲的 key
type Sweeper interface {
	Sweep() int
}

// SubscriptionExpirer 将周期已结束的订阅标记为过期
type SubscriptionExpirer interface {
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	sweeper        Sweeper
	subscriptions  SubscriptionExpirer
	sweepInterval  time.Duration
	expireInterval time.Duration
	log            *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewService(sweeper Sweeper, subscriptions SubscriptionExpirer, sweepInterval time.Duration, log *zap.Logger) *Service {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		sweeper:        sweeper,
		subscriptions:  subscriptions,
		sweepInterval:  sweepInterval,
		expireInterval: time.Hour,
		log:            log,
		stopChan:       make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	if s.sweeper != nil {
		s.every(s.sweepInterval, s.sweep)
	}
	if s.subscriptions != nil {
		s.every(s.expireInterval, s.expireSubscriptions)
	}
	s.log.Info("cron service started",
		zap.Duration("sweep_interval", s.sweepInterval),
		zap.Duration("expire_interval", s.expireInterval),
	)
}

// Stop 停止定时任务并等待正在执行的任务结束，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.log.Info("cron service stopped")
}

func (s *Service) every(interval time.Duration, job func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				job()
			}
		}
	}()
}

func (s *Service) sweep() {
	if n := s.sweeper.Sweep(); n > 0 {
		s.log.Debug("rate limiter swept", zap.Int("evicted", n))
	}
}

func (s *Service) expireSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.subscriptions.ExpireEnded(ctx, time.Now())
	if err != nil {
		s.log.Error("expire subscriptions failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", n))
	}
}

// RunNow 立即执行一次全部任务（用于测试或手动触发）
func (s *Service) RunNow() {
	if s.sweeper != nil {
		s.sweep()
	}
	if s.subscriptions != nil {
		s.expireSubscriptions()
	}
}
