// Package stats aggregates conversation outcomes for operational visibility.
// Counters live in memory and reset on restart; durable reporting belongs to
// the archive tables.
package stats

import (
	"context"
	"net/http"
	"sync"

	"voice-platform/internal/fanout"
	"voice-platform/internal/session"

	"github.com/gin-gonic/gin"
)

// Snapshot is the aggregate view served to operators.
type Snapshot struct {
	Activated  int   `json:"activated"`
	Completed  int   `json:"completed"`
	Failed     int   `json:"failed"`
	Utterances int64 `json:"utterances"`

	TotalDurationSeconds   int `json:"totalDurationSeconds"`
	AverageDurationSeconds int `json:"averageDurationSeconds"`
}

// Collector subscribes to the event stream and counts what happens.
type Collector struct {
	bus      fanout.Bus
	registry *session.Registry

	mu   sync.Mutex
	snap Snapshot
}

func NewCollector(bus fanout.Bus, registry *session.Registry) *Collector {
	return &Collector{bus: bus, registry: registry}
}

// Run blocks until ctx is canceled. Call it from its own goroutine.
func (c *Collector) Run(ctx context.Context) {
	events, cancel := c.bus.Subscribe(ctx)
	defer cancel()

	for ev := range events {
		c.apply(ctx, ev)
	}
}

func (c *Collector) apply(ctx context.Context, ev fanout.Event) {
	if ev.Kind == fanout.KindUtterance {
		c.mu.Lock()
		c.snap.Utterances++
		c.mu.Unlock()
		return
	}

	switch session.Status(ev.Status) {
	case session.StatusActive:
		c.mu.Lock()
		c.snap.Activated++
		c.mu.Unlock()
	case session.StatusCompleted, session.StatusFailed:
		var duration int
		if s, err := c.registry.GetSession(ctx, ev.SessionID); err == nil && s.EndedAt != nil {
			duration = s.DurationSeconds(*s.EndedAt)
		}
		c.mu.Lock()
		if session.Status(ev.Status) == session.StatusCompleted {
			c.snap.Completed++
		} else {
			c.snap.Failed++
		}
		c.snap.TotalDurationSeconds += duration
		if done := c.snap.Completed + c.snap.Failed; done > 0 {
			c.snap.AverageDurationSeconds = c.snap.TotalDurationSeconds / done
		}
		c.mu.Unlock()
	}
}

// Snapshot returns the current aggregates.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Serve handles GET /stats.
func (c *Collector) Serve(gc *gin.Context) {
	gc.JSON(http.StatusOK, c.Snapshot())
}
