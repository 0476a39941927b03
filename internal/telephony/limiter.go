package telephony

import (
	"context"
	"time"

	"voice-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const limiterKey = "concurrency:voice_calls"

// CallLimiter caps concurrent inbound calls across all gateway instances.
// The TTL bounds slot leakage when a teardown webhook never arrives.
type CallLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewCallLimiter(rdb *redis.Client, limit int) *CallLimiter {
	return &CallLimiter{rdb: rdb, limit: limit, ttl: 4 * time.Hour}
}

func (l *CallLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, limiterKey, l.limit, l.ttl)
}

func (l *CallLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, limiterKey)
}
