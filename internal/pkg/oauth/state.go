package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	stateKeyPrefix = "oauth:state:"
	stateTTL       = 10 * time.Minute
)

// ErrInvalidState state 不存在、已过期或已被使用
var ErrInvalidState = errors.New("invalid or expired oauth state")

// StateStore 在 Redis 中保存一次性的 OAuth state
type StateStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStateStore(rdb *redis.Client) *StateStore {
	return &StateStore{rdb: rdb, ttl: stateTTL}
}

// Generate 生成 256 位随机 state，并记录登录完成后要跳转的地址
func (s *StateStore) Generate(ctx context.Context, returnTo string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, stateKeyPrefix+state, returnTo, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}

	return state, nil
}

// Consume 校验并删除 state，返回记录的跳转地址；同一个 state 只能使用一次
func (s *StateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}

	returnTo, err := s.rdb.GetDel(ctx, stateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("consume state: %w", err)
	}

	return returnTo, nil
}
