package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/hashtag_server/internal/model/dto"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return mr, client, cleanup
}

func TestQueue_PushPop_FIFO(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_test")
	ctx := context.Background()

	for i, plan := range []string{"pro", "enterprise", "free"} {
		require.NoError(t, q.Push(ctx, &dto.BillingEvent{
			EventID:  "evt_" + plan,
			UserID:   int64(i + 1),
			PlanID:   plan,
			Sequence: int64(i + 1),
		}))
	}

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)

	for _, want := range []string{"pro", "enterprise", "free"} {
		event, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, want, event.PlanID)
		assert.Equal(t, "evt_"+want, event.EventID)
	}
}

func TestQueue_Pop_Timeout(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_test")

	event, err := q.Pop(context.Background(), 100*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, event)
}

func TestQueue_Pop_Malformed(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_test")
	_, err := mr.Lpush("billing_test", "{not json")
	require.NoError(t, err)

	event, err := q.Pop(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Nil(t, event)

	dead, err := mr.List(q.DeadLetterName())
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, dead)
}

func TestQueue_RetryAndDeadLetter(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "billing_test")
	ctx := context.Background()
	event := &dto.BillingEvent{EventID: "evt_1", UserID: 1, PlanID: "pro"}

	require.NoError(t, q.Retry(ctx, event))
	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	require.NoError(t, q.DeadLetter(ctx, event))
	dead, err := mr.List("billing_test:dead")
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}
