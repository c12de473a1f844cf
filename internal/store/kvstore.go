package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/kv"
)

// maxKVTurns bounds a single session record in the key-value store.
const maxKVTurns = 200

type kvRecord struct {
	Title     string                    `json:"title"`
	UpdatedAt time.Time                 `json:"updatedAt"`
	Messages  []domain.ConversationTurn `json:"messages"`
}

// KVStore implements Repository on a kv.Store. It serves as the fallback
// history store and, backed by Redis, as shared history across instances.
type KVStore struct {
	kv  kv.Store
	ttl time.Duration

	// indexMu serializes the per-user index read-modify-write. Sessions are
	// already serialized by the gateway; different sessions of one user are not.
	indexMu sync.Mutex
}

var _ Repository = (*KVStore)(nil)

// NewKVStore creates a history store over store. A zero ttl keeps records forever.
func NewKVStore(store kv.Store, ttl time.Duration) *KVStore {
	return &KVStore{kv: store, ttl: ttl}
}

func historyKey(userID, sessionID string) string {
	return "history:" + userID + ":" + sessionID
}

func indexKey(userID string) string {
	return "history_index:" + userID
}

func (s *KVStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *KVStore) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, string(raw), s.ttl)
}

// ListSummaries implements Repository.
func (s *KVStore) ListSummaries(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	var index []domain.ConversationSummary
	if _, err := s.getJSON(ctx, indexKey(userID), &index); err != nil {
		return nil, fmt.Errorf("load history index: %w", err)
	}
	sort.SliceStable(index, func(i, j int) bool { return index[i].UpdatedAt.After(index[j].UpdatedAt) })
	if n := clampLimit(limit); len(index) > n {
		index = index[:n]
	}
	if index == nil {
		index = []domain.ConversationSummary{}
	}
	return index, nil
}

// History implements Repository.
func (s *KVStore) History(ctx context.Context, userID, sessionID string) ([]domain.ConversationTurn, error) {
	var rec kvRecord
	if _, err := s.getJSON(ctx, historyKey(userID, sessionID), &rec); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if rec.Messages == nil {
		return []domain.ConversationTurn{}, nil
	}
	return rec.Messages, nil
}

// SaveExchange implements Repository.
func (s *KVStore) SaveExchange(ctx context.Context, ex Exchange) error {
	var rec kvRecord
	if _, err := s.getJSON(ctx, historyKey(ex.UserID, ex.SessionID), &rec); err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	turns := ex.Turns()
	rec.Title = ex.Title()
	rec.UpdatedAt = turns[len(turns)-1].Timestamp
	rec.Messages = append(rec.Messages, turns...)
	if len(rec.Messages) > maxKVTurns {
		rec.Messages = rec.Messages[len(rec.Messages)-maxKVTurns:]
	}
	if err := s.setJSON(ctx, historyKey(ex.UserID, ex.SessionID), rec); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	var index []domain.ConversationSummary
	if _, err := s.getJSON(ctx, indexKey(ex.UserID), &index); err != nil {
		return fmt.Errorf("load history index: %w", err)
	}
	summary := domain.ConversationSummary{SessionID: ex.SessionID, Title: rec.Title, UpdatedAt: rec.UpdatedAt}
	replaced := false
	for i := range index {
		if index[i].SessionID == ex.SessionID {
			index[i] = summary
			replaced = true
			break
		}
	}
	if !replaced {
		index = append(index, summary)
	}
	if err := s.setJSON(ctx, indexKey(ex.UserID), index); err != nil {
		return fmt.Errorf("save history index: %w", err)
	}
	return nil
}

// Ping implements Repository.
func (s *KVStore) Ping(ctx context.Context) error {
	_, err := s.kv.Get(ctx, "history_ping")
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

// Close implements Repository. The underlying kv.Store is owned by the caller.
func (s *KVStore) Close() error { return nil }
