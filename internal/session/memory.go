package session

import (
	"context"
	"sync"
	"time"

	"trade-settlement/internal/workflow"
)

type memoryEntry struct {
	snap      workflow.Snapshot
	expiresAt time.Time
}

// memoryLock is a per-session mutex shared by every holder and waiter.
type memoryLock struct {
	ch   chan struct{}
	refs int
}

// Memory keeps sessions in process. Expired entries are dropped when read
// and swept from Save at most once per TTL.
type Memory struct {
	ttl   time.Duration
	clock func() time.Time

	mu        sync.RWMutex
	entries   map[string]memoryEntry
	nextSweep time.Time

	lockMu sync.Mutex
	locks  map[string]*memoryLock
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.clock = clock
	}
}

// NewMemory constructs an in-process store.
func NewMemory(ttl time.Duration, options ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]*memoryLock),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *Memory) Save(ctx context.Context, id string, snap workflow.Snapshot) error {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !now.Before(m.nextSweep) {
		m.sweepLocked(now)
		m.nextSweep = now.Add(m.ttl)
	}
	m.entries[id] = memoryEntry{snap: snap, expiresAt: now.Add(m.ttl)}
	return nil
}

// Sweep drops every expired session and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

func (m *Memory) sweepLocked(now time.Time) int {
	removed := 0
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

func (m *Memory) Load(ctx context.Context, id string) (workflow.Snapshot, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return workflow.Snapshot{}, ErrNotFound
	}
	if !m.clock().Before(entry.expiresAt) {
		_ = m.Delete(ctx, id)
		return workflow.Snapshot{}, ErrNotFound
	}
	return entry.snap, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

// Lock serialises actions on id. The lock is forgotten once nobody holds or
// waits for it, so unknown ids leave nothing behind.
func (m *Memory) Lock(ctx context.Context, id string) (func(), error) {
	m.lockMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &memoryLock{ch: make(chan struct{}, 1)}
		m.locks[id] = l
	}
	l.refs++
	m.lockMu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				m.release(id, l)
			})
		}, nil
	case <-ctx.Done():
		m.release(id, l)
		return nil, ctx.Err()
	}
}

func (m *Memory) release(id string, l *memoryLock) {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, id)
	}
}

// Len returns the number of stored sessions, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) lockCount() int {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	return len(m.locks)
}

func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)
