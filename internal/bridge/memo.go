package bridge

import (
	"context"
	"sync"
	"time"
)

// CallMemo memoizes external call identifiers against session ids so that
// webhook redelivery for the same call never creates a duplicate session.
// Entries live for at most the memo TTL and are forgotten when the call ends.
type CallMemo interface {
	// Remember binds callID to sessionID unless a binding already exists, in
	// which case the existing session id is returned.
	Remember(ctx context.Context, callID, sessionID string, ttl time.Duration) (string, error)

	Lookup(ctx context.Context, callID string) (string, bool, error)

	Forget(ctx context.Context, callID string) error
}

// MemoryCallMemo is the single-node CallMemo used in tests and local
// development.
type MemoryCallMemo struct {
	mu      sync.Mutex
	entries map[string]memoEntry

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type memoEntry struct {
	sessionID string
	expiresAt time.Time
}

func NewMemoryCallMemo() *MemoryCallMemo {
	return &MemoryCallMemo{entries: map[string]memoEntry{}, clock: time.Now}
}

func (m *MemoryCallMemo) Remember(ctx context.Context, callID, sessionID string, ttl time.Duration) (string, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[callID]; ok && e.expiresAt.After(now) {
		return e.sessionID, nil
	}
	m.entries[callID] = memoEntry{sessionID: sessionID, expiresAt: now.Add(ttl)}
	return sessionID, nil
}

func (m *MemoryCallMemo) Lookup(ctx context.Context, callID string) (string, bool, error) {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[callID]
	if !ok || !e.expiresAt.After(now) {
		delete(m.entries, callID)
		return "", false, nil
	}
	return e.sessionID, true, nil
}

func (m *MemoryCallMemo) Forget(ctx context.Context, callID string) error {
	m.mu.Lock()
	delete(m.entries, callID)
	m.mu.Unlock()
	return nil
}
