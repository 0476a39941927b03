package fanout

import (
	"context"
	"log/slog"
	"sync"
)

const defaultSubscriberBuffer = 256

// MemoryBus is the in-process Bus implementation backing a single-node
// deployment and all tests.
//
// Publish appends to each live subscriber's buffered channel under the bus
// lock, which is what preserves per-session ordering: two Publish calls for
// the same session are serialized by the caller (the registry holds the
// per-session lock across publish), and the buffered channel preserves
// insertion order per subscriber.
type MemoryBus struct {
	log    *slog.Logger
	buffer int

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewMemoryBus(log *slog.Logger) *MemoryBus {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryBus{
		log:    log,
		buffer: defaultSubscriberBuffer,
		subs:   map[*subscriber]struct{}{},
	}
}

// Publish delivers ev to every live subscriber. A subscriber whose buffer is
// full has fallen too far behind to honor the ordering contract; it is
// evicted (channel closed) instead of blocking the publisher.
func (b *MemoryBus) Publish(_ context.Context, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(b.subs, sub)
			sub.close()
			b.log.Warn("fanout subscriber evicted", "session_id", ev.SessionID)
		}
	}
}

// Subscribe registers a new subscriber. No historical events are replayed.
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.close()
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return sub.ch, cancel
}
