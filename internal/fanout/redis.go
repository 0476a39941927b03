package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the redis pub/sub channel carrying events for one session.
func Channel(sessionID string) string {
	return "session:" + sessionID
}

// RedisPublisher mirrors bus events to redis pub/sub so that other processes
// (UI backends, observers on other nodes) can follow session activity.
//
// Delivery through redis is best-effort: Publish only enqueues, a background
// goroutine does the network I/O, and events are dropped with a log line when
// the mirror cannot keep up. The registry never waits on redis.
type RedisPublisher struct {
	rdb     *redis.Client
	log     *slog.Logger
	timeout time.Duration
	queue   chan Event
}

func NewRedisPublisher(rdb *redis.Client, log *slog.Logger) *RedisPublisher {
	if log == nil {
		log = slog.Default()
	}
	p := &RedisPublisher{
		rdb:     rdb,
		log:     log,
		timeout: 2 * time.Second,
		queue:   make(chan Event, defaultSubscriberBuffer),
	}
	go p.drain()
	return p
}

func (p *RedisPublisher) Publish(_ context.Context, ev Event) {
	select {
	case p.queue <- ev:
	default:
		p.log.Warn("fanout redis queue full, event dropped", "session_id", ev.SessionID)
	}
}

func (p *RedisPublisher) drain() {
	for ev := range p.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.log.Error("fanout redis marshal failed", "session_id", ev.SessionID, "err", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.rdb.Publish(ctx, Channel(ev.SessionID), payload).Err()
		cancel()
		if err != nil {
			p.log.Warn("fanout redis publish failed", "session_id", ev.SessionID, "err", err)
		}
	}
}

// Tee fans a publish out to several publishers in order.
type Tee []Publisher

func (t Tee) Publish(ctx context.Context, ev Event) {
	for _, p := range t {
		p.Publish(ctx, ev)
	}
}
