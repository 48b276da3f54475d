package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-settlement/internal/trade"
	"trade-settlement/internal/workflow"
)

func quotedSnapshot() workflow.Snapshot {
	req := trade.Request{Base: "USD", Quote: "EUR", Amount: decimal.NewFromInt(100)}
	q := trade.Quote{Pair: req.Pair(), Rate: decimal.RequireFromString("0.92"), FetchedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	return workflow.Snapshot{State: workflow.StateQuoted, Request: &req, Quote: &q}
}

func TestMemorySaveLoad(t *testing.T) {
	store := NewMemory(time.Minute)
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	id := NewID()
	require.NoError(t, store.Save(ctx, id, quotedSnapshot()))

	snap, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateQuoted, snap.State)
	assert.True(t, snap.Quote.Rate.Equal(decimal.RequireFromString("0.92")))

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemory(time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", quotedSnapshot()))
	now = now.Add(59 * time.Second)
	_, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = store.Load(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.Len())
}

func TestMemoryLockSerialises(t *testing.T) {
	store := NewMemory(time.Minute)
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := store.Lock(ctx, "s1")
			if err != nil {
				return
			}
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestMemoryLockHonoursContext(t *testing.T) {
	store := NewMemory(time.Minute)
	unlock, err := store.Lock(context.Background(), "s1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Lock(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := store.Lock(context.Background(), "s2")
	require.NoError(t, err, "different sessions do not contend")
	other()
}

func TestMemoryUnlockIsIdempotent(t *testing.T) {
	store := NewMemory(time.Minute)
	unlock, err := store.Lock(context.Background(), "s1")
	require.NoError(t, err)
	unlock()
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := store.Lock(ctx, "s1")
	require.NoError(t, err)
	again()
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{URL: "not-a-url"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestMemorySweepsAbandonedSessions(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemory(time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, store.Save(ctx, fmt.Sprintf("s%d", i), quotedSnapshot()))
	}
	require.Equal(t, 1000, store.Len())

	now = now.Add(24 * time.Hour)
	require.NoError(t, store.Save(ctx, "fresh", quotedSnapshot()))
	assert.Equal(t, 1, store.Len())

	_, err := store.Load(ctx, "fresh")
	require.NoError(t, err)
}

func TestMemorySweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemory(time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "old", quotedSnapshot()))
	now = now.Add(30 * time.Second)
	require.NoError(t, store.Save(ctx, "new", quotedSnapshot()))
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
	_, err := store.Load(ctx, "new")
	require.NoError(t, err)
}

func TestMemoryLocksAreReleased(t *testing.T) {
	store := NewMemory(time.Minute)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		unlock, err := store.Lock(ctx, fmt.Sprintf("unknown-%d", i))
		require.NoError(t, err)
		unlock()
	}
	assert.Zero(t, store.lockCount())

	unlock, err := store.Lock(ctx, "s1")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = store.Lock(waitCtx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, store.lockCount())

	unlock()
	unlock()
	assert.Zero(t, store.lockCount())
}

func newTestRedis(t *testing.T, opts RedisOptions) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisWithClient(client, opts, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t, RedisOptions{TTL: time.Minute, KeyPrefix: "tradesettle:test:"})

	_, err := store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	id := NewID()
	require.NoError(t, store.Save(ctx, id, quotedSnapshot()))
	snap, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateQuoted, snap.State)
	assert.True(t, snap.Quote.Rate.Equal(decimal.RequireFromString("0.92")))
	assert.True(t, snap.Request.Amount.Equal(decimal.NewFromInt(100)))

	unlock, err := store.Lock(ctx, id)
	require.NoError(t, err)
	lockCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = store.Lock(lockCtx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	unlock()

	again, err := store.Lock(ctx, id)
	require.NoError(t, err)
	again()

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t, RedisOptions{TTL: time.Minute})

	require.NoError(t, store.Save(ctx, "s1", quotedSnapshot()))
	mr.FastForward(59 * time.Second)
	_, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = store.Load(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
}
