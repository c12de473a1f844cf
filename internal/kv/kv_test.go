package kv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "role:u1", "TEACHER", 0))
	got, err := m.Get(ctx, "role:u1")
	require.NoError(t, err)
	assert.Equal(t, "TEACHER", got)

	require.NoError(t, m.Delete(ctx, "role:u1"))
	_, err = m.Get(ctx, "role:u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, m.Set(ctx, "other", "v", time.Minute))
	require.NoError(t, m.Set(ctx, "forever", "v", 0))
	assert.Zero(t, m.Sweep())

	now = now.Add(2 * time.Minute)
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, m.Sweep(), "only the unread expired key is left to sweep")

	got, err := m.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoryGetKeepsConcurrentRewrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }
	require.NoError(t, m.Set(ctx, "k", "old", time.Minute))

	// The first clock read inside Get happens after the read lock is
	// released; a writer slips in a fresh value at that point.
	rewritten := false
	m.now = func() time.Time {
		if !rewritten {
			rewritten = true
			require.NoError(t, m.Set(ctx, "k", "new", 0))
		}
		return now.Add(2 * time.Minute)
	}

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestMemorySweeperStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "k", "v", time.Millisecond))
	m.StartSweeper(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.items) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	r, err := NewRedis(ctx, RedisConfig{Addr: addr, Prefix: "eduvane-test:"})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	require.NoError(t, r.Set(ctx, "k", "v", time.Minute))
	got, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, r.Delete(ctx, "k"))
	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
