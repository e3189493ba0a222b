package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(Options{DefaultRule: Rule{Limit: limit, Window: window}}).WithClock(clock.Now)
	return l, clock
}

func TestLimiter_IsAllowed_ExactlyN(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	allowed := 0
	for i := 0; i < 6; i++ {
		if l.IsAllowed("ip:1.2.3.4") {
			allowed++
		}
		clock.Advance(time.Second)
	}
	assert.Equal(t, 5, allowed)
	assert.False(t, l.IsAllowed("ip:1.2.3.4"))

	// 窗口过去后恢复
	clock.Advance(time.Minute)
	assert.True(t, l.IsAllowed("ip:1.2.3.4"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.True(t, l.IsAllowed("a"))
	assert.False(t, l.IsAllowed("a"))
	assert.True(t, l.IsAllowed("b"))
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	require.True(t, l.IsAllowed("k")) // t=0
	clock.Advance(40 * time.Second)
	require.True(t, l.IsAllowed("k")) // t=40
	assert.False(t, l.IsAllowed("k"))

	// t=60：第一个请求恰好滑出窗口，只释放一个名额
	clock.Advance(20 * time.Second)
	assert.True(t, l.IsAllowed("k"))
	assert.False(t, l.IsAllowed("k"))

	// t=100：第二个请求滑出
	clock.Advance(40 * time.Second)
	assert.True(t, l.IsAllowed("k"))
}

func TestLimiter_BoundaryBurstPrevented(t *testing.T) {
	l, clock := newTestLimiter(3, time.Minute)

	clock.Advance(59 * time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, l.IsAllowed("k"))
	}

	// 固定窗口会在这里重置，滑动窗口不会
	clock.Advance(2 * time.Second)
	assert.False(t, l.IsAllowed("k"))
}

func TestLimiter_AllowResult(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)
	start := clock.Now()
	rule := Rule{Limit: 2, Window: 30 * time.Second}

	res := l.Allow("k", rule)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, start.Add(30*time.Second), res.ResetAt)

	clock.Advance(10 * time.Second)
	res = l.Allow("k", rule)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res = l.Allow("k", rule)
	assert.False(t, res.Allowed)
	assert.Equal(t, start.Add(30*time.Second), res.ResetAt)
	assert.Equal(t, 20*time.Second, res.RetryAfter)
}

func TestLimiter_NonPositiveLimitDenies(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)

	for _, limit := range []int{0, -1} {
		res := l.Allow("k", Rule{Limit: limit, Window: 30 * time.Second})
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Limit)
		assert.Equal(t, clock.Now().Add(30*time.Second), res.ResetAt)
		assert.Equal(t, 30*time.Second, res.RetryAfter)
	}

	// 窗口缺省时使用默认窗口
	res := l.Allow("k2", Rule{Limit: 0})
	assert.False(t, res.Allowed)
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
}

func TestLimiter_AllowAll(t *testing.T) {
	l, clock := newTestLimiter(10, time.Minute)
	minute := Rule{Limit: 3, Window: time.Minute}
	hour := Rule{Limit: 4, Window: time.Hour}

	res := l.AllowAll("u:1", minute, hour)
	require.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, time.Minute, res.Window)

	for i := 0; i < 2; i++ {
		require.True(t, l.AllowAll("u:1", minute, hour).Allowed)
	}

	// 分钟窗口已满，小时窗口不记录
	res = l.AllowAll("u:1", minute, hour)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.Window)

	clock.Advance(time.Minute)
	res = l.AllowAll("u:1", minute, hour)
	require.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Hour, res.Window)

	// 小时窗口已满，分钟窗口同样不记录
	for i := 0; i < 5; i++ {
		res = l.AllowAll("u:1", minute, hour)
		assert.False(t, res.Allowed)
		assert.Equal(t, time.Hour, res.Window)
	}
	assert.True(t, l.Allow("u:1|1m0s", Rule{Limit: 2, Window: time.Minute}).Allowed)
}

func TestLimiter_ResetTime(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	start := clock.Now()

	assert.Equal(t, start, l.ResetTime("k"))

	l.IsAllowed("k")
	clock.Advance(10 * time.Second)
	l.IsAllowed("k")

	assert.Equal(t, start.Add(time.Minute), l.ResetTime("k"))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, clock.Now(), l.ResetTime("k"))
}

func TestLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	for i := 0; i < 100; i++ {
		l.IsAllowed(fmt.Sprintf("ip:%d", i))
	}
	assert.Equal(t, 100, l.Len())

	clock.Advance(2 * time.Minute)
	l.IsAllowed("ip:active")
	assert.Equal(t, 0, l.Sweep())

	clock.Advance(time.Minute)
	assert.Equal(t, 100, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(50, time.Minute)

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.IsAllowed("shared") {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed)
}

func TestNew_Defaults(t *testing.T) {
	l := New(Options{})

	assert.Len(t, l.shards, 32)
	assert.Equal(t, 3, l.idleWindows)
	assert.Equal(t, Rule{Limit: 10, Window: time.Minute}, l.rule)
}
