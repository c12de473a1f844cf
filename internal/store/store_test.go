package store

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/kv"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "eduvane.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"sqlite": newSQLite(t),
		"kv":     NewKVStore(kv.NewMemory(), 0),
	}
}

func TestExchangeTitleAndPlaceholder(t *testing.T) {
	t.Parallel()

	ex := Exchange{UserMessage: "   "}
	assert.Equal(t, UploadOnlyTitle, ex.Title())
	assert.Equal(t, UploadOnlyMessage, ex.Turns()[0].Content)

	long := Exchange{UserMessage: "Generate five practice questions on photosynthesis for a grade seven biology class"}
	assert.Equal(t, "Generate five practice questions on photosynthesis for a grade s", long.Title())
	assert.Len(t, []rune(long.Title()), 64)
}

func TestRepositoriesSaveAndRead(t *testing.T) {
	t.Parallel()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

			require.NoError(t, repo.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "s1", UserMessage: "first question", AssistantMessage: "a1", At: t0}))
			require.NoError(t, repo.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "s2", UserMessage: "", AssistantMessage: "a2", At: t0.Add(time.Minute)}))
			require.NoError(t, repo.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "s1", UserMessage: "second question", AssistantMessage: "a3", At: t0.Add(2 * time.Minute)}))
			require.NoError(t, repo.SaveExchange(ctx, Exchange{UserID: "u2", SessionID: "s1", UserMessage: "other user", AssistantMessage: "x", At: t0}))

			turns, err := repo.History(ctx, "u1", "s1")
			require.NoError(t, err)
			require.Len(t, turns, 4)
			assert.Equal(t, domain.TurnUser, turns[0].Role)
			assert.Equal(t, "first question", turns[0].Content)
			assert.Equal(t, domain.TurnAssistant, turns[3].Role)
			assert.Equal(t, "a3", turns[3].Content)
			assert.True(t, turns[3].Timestamp.Equal(t0.Add(2*time.Minute)))

			sums, err := repo.ListSummaries(ctx, "u1", 0)
			require.NoError(t, err)
			require.Len(t, sums, 2)
			assert.Equal(t, "s1", sums[0].SessionID)
			assert.Equal(t, "second question", sums[0].Title, "title follows the latest message")
			assert.Equal(t, "s2", sums[1].SessionID)
			assert.Equal(t, UploadOnlyTitle, sums[1].Title)

			empty, err := repo.History(ctx, "u1", "missing")
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, repo.Ping(ctx))
		})
	}
}

func TestSummariesLimitedToForty(t *testing.T) {
	t.Parallel()

	repo := NewKVStore(kv.NewMemory(), 0)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 45; i++ {
		require.NoError(t, repo.SaveExchange(ctx, Exchange{
			UserID: "u1", SessionID: "s" + string(rune('A'+i)), UserMessage: "m", AssistantMessage: "a",
			At: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	sums, err := repo.ListSummaries(ctx, "u1", 100)
	require.NoError(t, err)
	assert.Len(t, sums, MaxSummaries)
	assert.True(t, sums[0].UpdatedAt.After(sums[1].UpdatedAt))
}

type brokenRepo struct{ Repository }

var errBroken = errors.New("primary unavailable")

func (brokenRepo) ListSummaries(context.Context, string, int) ([]domain.ConversationSummary, error) {
	return nil, errBroken
}

func (brokenRepo) History(context.Context, string, string) ([]domain.ConversationTurn, error) {
	return nil, errBroken
}

func (brokenRepo) SaveExchange(context.Context, Exchange) error { return errBroken }

func (brokenRepo) Close() error { return nil }

func TestFallbackReadsSecondaryWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	secondary := NewKVStore(kv.NewMemory(), 0)
	f := NewFallback(brokenRepo{}, secondary, nil)

	require.NoError(t, f.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "s1", UserMessage: "hi", AssistantMessage: "hello"}))

	turns, err := f.History(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	sums, err := f.ListSummaries(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, sums, 1)
}

func TestFallbackPrefersPrimary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := newSQLite(t)
	secondary := NewKVStore(kv.NewMemory(), 0)
	f := NewFallback(primary, secondary, nil)

	require.NoError(t, f.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "s1", UserMessage: "hi", AssistantMessage: "hello"}))

	for _, repo := range []Repository{primary, secondary} {
		turns, err := repo.History(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.Len(t, turns, 2)
	}
	require.NoError(t, f.Close())
}

func TestIsSQLiteConflict(t *testing.T) {
	t.Parallel()

	assert.True(t, isSQLiteConflict(errors.New("SQLITE_BUSY: database busy")))
	assert.True(t, isSQLiteConflict(errors.New("database is locked")))
	assert.False(t, isSQLiteConflict(errors.New("no such table")))
	assert.False(t, isSQLiteConflict(nil))
}

func TestWithBusyRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := withBusyRetry(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSQLitePruneBefore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newSQLite(t)
	old := time.Unix(1_600_000_000, 0)
	fresh := time.Unix(1_700_000_000, 0)

	require.NoError(t, s.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "old", UserMessage: "a", AssistantMessage: "b", At: old}))
	require.NoError(t, s.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "new", UserMessage: "c", AssistantMessage: "d", At: fresh}))

	n, err := s.PruneBefore(ctx, fresh.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	turns, err := s.History(ctx, "u1", "old")
	require.NoError(t, err)
	assert.Empty(t, turns)

	summaries, err := s.ListSummaries(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "new", summaries[0].SessionID)
}

type countingPruner struct {
	calls chan time.Time
}

func (p countingPruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls <- cutoff
	return 0, nil
}

func TestRetentionWorkerSweepsOnStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := countingPruner{calls: make(chan time.Time, 1)}
	StartRetentionWorker(ctx, p, time.Hour, nil)

	select {
	case cutoff := <-p.calls:
		assert.WithinDuration(t, time.Now().Add(-time.Hour), cutoff, time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("retention worker did not sweep")
	}

	// Disabled retention starts nothing.
	StartRetentionWorker(ctx, p, 0, nil)
}

func TestTitleFollowsLatestExchange(t *testing.T) {
	t.Parallel()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

			require.NoError(t, repo.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "s1", UserMessage: "fractions please", AssistantMessage: "a1", At: t0}))
			require.NoError(t, repo.SaveExchange(ctx, Exchange{UserID: "u1", SessionID: "s1", UserMessage: "", AssistantMessage: "a2", At: t0.Add(time.Minute)}))

			sums, err := repo.ListSummaries(ctx, "u1", 0)
			require.NoError(t, err)
			require.Len(t, sums, 1)
			assert.Equal(t, UploadOnlyTitle, sums[0].Title)
		})
	}
}

func TestKVStoreConcurrentSessionsKeepIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewKVStore(kv.NewMemory(), 0)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	const sessions = 20
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.SaveExchange(ctx, Exchange{
				UserID:           "u1",
				SessionID:        "s" + strconv.Itoa(i),
				UserMessage:      "question",
				AssistantMessage: "answer",
				At:               t0.Add(time.Duration(i) * time.Second),
			}))
		}()
	}
	wg.Wait()

	sums, err := repo.ListSummaries(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, sums, sessions)
}
