package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/hashtag_server/internal/model/dto"
)

// ErrMalformedEvent 无法解码的消息，已放入死信队列
var ErrMalformedEvent = errors.New("malformed billing event")

// Queue 基于 Redis List 的计费事件队列，LPUSH 入队、BRPOP 出队
type Queue struct {
	client    *redis.Client
	queueName string
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将事件加入队列
func (q *Queue) Push(ctx context.Context, event *dto.BillingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取事件（阻塞），超时返回 nil, nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*dto.BillingEvent, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var event dto.BillingEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		// 格式错误的消息放入死信队列，避免丢失
		_ = q.client.LPush(ctx, q.DeadLetterName(), result[1]).Err()
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	return &event, nil
}

// Retry 处理失败的事件放回队列尾部，稍后重新消费
func (q *Queue) Retry(ctx context.Context, event *dto.BillingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return q.client.LPush(ctx, q.queueName, data).Err()
}

// DeadLetter 无法处理的事件
func (q *Queue) DeadLetter(ctx context.Context, event *dto.BillingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return q.client.LPush(ctx, q.DeadLetterName(), data).Err()
}

func (q *Queue) DeadLetterName() string {
	return q.queueName + ":dead"
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
