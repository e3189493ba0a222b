package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/qs3c/hashtag_server/internal/model/dto"
	"github.com/qs3c/hashtag_server/internal/pkg/queue"
	"github.com/qs3c/hashtag_server/internal/service"
)

type fakeUpdater struct {
	mu      sync.Mutex
	calls   []service.SubscriptionUpdate
	err     error
	applied bool
}

func (f *fakeUpdater) UpdateSubscription(_ context.Context, upd service.SubscriptionUpdate) (*dto.SubscriptionInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upd)
	if f.err != nil {
		return nil, false, f.err
	}
	return &dto.SubscriptionInfo{UserID: upd.UserID, PlanID: upd.PlanID, Status: "active"}, f.applied, nil
}

func (f *fakeUpdater) Calls() []service.SubscriptionUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.SubscriptionUpdate(nil), f.calls...)
}

func setupQueue(t *testing.T) (*miniredis.Miniredis, *queue.Queue) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, queue.NewQueue(client, "billing_test")
}

func TestProcessor_Process_Applies(t *testing.T) {
	_, q := setupQueue(t)
	updater := &fakeUpdater{applied: true}
	p := NewProcessor(updater, q, zaptest.NewLogger(t))

	err := p.Process(context.Background(), &dto.BillingEvent{
		EventID: "evt_1", UserID: 7, PlanID: "pro", Status: "active", Sequence: 3,
	})
	require.NoError(t, err)

	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, service.SubscriptionUpdate{UserID: 7, PlanID: "pro", Status: "active", Sequence: 3}, calls[0])
}

func TestProcessor_Process_RejectedGoesToDeadLetter(t *testing.T) {
	mr, q := setupQueue(t)
	updater := &fakeUpdater{err: service.ErrUserNotFound}
	p := NewProcessor(updater, q, zaptest.NewLogger(t))

	err := p.Process(context.Background(), &dto.BillingEvent{EventID: "evt_1", UserID: 404, PlanID: "pro"})
	require.NoError(t, err)

	dead, err := mr.List(q.DeadLetterName())
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestProcessor_Process_UnavailableIsRetryable(t *testing.T) {
	mr, q := setupQueue(t)
	updater := &fakeUpdater{err: fmt.Errorf("%w: upsert: connection refused", service.ErrRepositoryUnavailable)}
	p := NewProcessor(updater, q, zaptest.NewLogger(t))

	err := p.Process(context.Background(), &dto.BillingEvent{EventID: "evt_1", UserID: 1, PlanID: "pro"})
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrRepositoryUnavailable)
	assert.False(t, mr.Exists(q.DeadLetterName()))
}

func TestProcessor_Run_ConsumesUntilCancelled(t *testing.T) {
	_, q := setupQueue(t)
	updater := &fakeUpdater{applied: true}
	p := NewProcessor(updater, q, zaptest.NewLogger(t))
	p.popTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Push(ctx, &dto.BillingEvent{
			EventID: fmt.Sprintf("evt_%d", i), UserID: int64(i), PlanID: "pro",
		}))
	}

	done := make(chan struct{})
	go func() {
		p.Run(ctx, 2)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(updater.Calls()) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestProcessor_Run_RequeuesOnFailure(t *testing.T) {
	_, q := setupQueue(t)
	updater := &fakeUpdater{err: service.ErrRepositoryUnavailable}
	p := NewProcessor(updater, q, zaptest.NewLogger(t))
	p.popTimeout = 50 * time.Millisecond
	p.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Push(ctx, &dto.BillingEvent{EventID: "evt_1", UserID: 1, PlanID: "pro"}))

	go p.Run(ctx, 1)

	// 同一事件被反复投递
	assert.Eventually(t, func() bool {
		return len(updater.Calls()) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	for _, call := range updater.Calls() {
		assert.Equal(t, int64(1), call.UserID)
	}
}

// downQueue 模拟 Redis 不可用，Pop 总是失败
type downQueue struct {
	pops int64
}

func (q *downQueue) Pop(context.Context, time.Duration) (*dto.BillingEvent, error) {
	atomic.AddInt64(&q.pops, 1)
	return nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func (q *downQueue) Retry(context.Context, *dto.BillingEvent) error      { return nil }
func (q *downQueue) DeadLetter(context.Context, *dto.BillingEvent) error { return nil }

func TestProcessor_Run_BacksOffWhenQueueDown(t *testing.T) {
	q := &downQueue{}
	p := NewProcessor(&fakeUpdater{}, q, zaptest.NewLogger(t))
	p.retryDelay = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx, 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}

	pops := atomic.LoadInt64(&q.pops)
	assert.GreaterOrEqual(t, pops, int64(1))
	assert.LessOrEqual(t, pops, int64(6))
}

func TestProcessor_Run_SkipsMalformed(t *testing.T) {
	mr, q := setupQueue(t)
	updater := &fakeUpdater{applied: true}
	p := NewProcessor(updater, q, zaptest.NewLogger(t))
	p.popTimeout = 50 * time.Millisecond
	p.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := mr.Lpush("billing_test", "{not json")
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, &dto.BillingEvent{EventID: "evt_ok", UserID: 1, PlanID: "pro"}))

	go p.Run(ctx, 1)

	// 格式错误的消息不触发退避，后面的事件照常处理
	assert.Eventually(t, func() bool {
		return len(updater.Calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	dead, err := mr.List(q.DeadLetterName())
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, dead)
}
