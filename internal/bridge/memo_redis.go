package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const memoKeyPrefix = "callmemo:"

// RedisCallMemo shares the call-id memo across gateway nodes. The TTL backs
// the "lifetime of the session" bound; Forget clears the binding eagerly when
// the call ends.
type RedisCallMemo struct {
	rdb *redis.Client
}

func NewRedisCallMemo(rdb *redis.Client) *RedisCallMemo {
	return &RedisCallMemo{rdb: rdb}
}

func (m *RedisCallMemo) Remember(ctx context.Context, callID, sessionID string, ttl time.Duration) (string, error) {
	key := memoKeyPrefix + callID

	ok, err := m.rdb.SetNX(ctx, key, sessionID, ttl).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return sessionID, nil
	}

	existing, err := m.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Binding expired between SetNX and Get; retry once.
			return m.Remember(ctx, callID, sessionID, ttl)
		}
		return "", err
	}
	return existing, nil
}

func (m *RedisCallMemo) Lookup(ctx context.Context, callID string) (string, bool, error) {
	v, err := m.rdb.Get(ctx, memoKeyPrefix+callID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (m *RedisCallMemo) Forget(ctx context.Context, callID string) error {
	return m.rdb.Del(ctx, memoKeyPrefix+callID).Err()
}
