package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/kv"
)

const (
	defaultMemoryTTL  = 30 * 24 * time.Hour
	maxRememberedGaps = 5
)

// Memory keeps per-session reasoning state in a kv.Store.
type Memory struct {
	store kv.Store
	ttl   time.Duration
}

// NewMemory creates session memory over store.
func NewMemory(store kv.Store, ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	return &Memory{store: store, ttl: ttl}
}

func memoryKey(userID, sessionID, field string) string {
	return "session:" + userID + ":" + sessionID + ":" + field
}

// Role returns the remembered role for a session.
func (m *Memory) Role(ctx context.Context, userID, sessionID string) (domain.Role, error) {
	v, err := m.store.Get(ctx, memoryKey(userID, sessionID, "role"))
	if errors.Is(err, kv.ErrNotFound) {
		return domain.RoleUnknown, nil
	}
	if err != nil {
		return domain.RoleUnknown, fmt.Errorf("get session role: %w", err)
	}
	return domain.NormalizeRole(v), nil
}

// SetRole remembers a known role for a session.
func (m *Memory) SetRole(ctx context.Context, userID, sessionID string, role domain.Role) error {
	if !role.Known() {
		return nil
	}
	if err := m.store.Set(ctx, memoryKey(userID, sessionID, "role"), string(role), m.ttl); err != nil {
		return fmt.Errorf("set session role: %w", err)
	}
	return nil
}

// ClarificationAsked reports whether the role question was already asked.
func (m *Memory) ClarificationAsked(ctx context.Context, userID, sessionID string) (bool, error) {
	_, err := m.store.Get(ctx, memoryKey(userID, sessionID, "role_asked"))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get clarification flag: %w", err)
	}
	return true, nil
}

// MarkClarificationAsked records that the role question was asked.
func (m *Memory) MarkClarificationAsked(ctx context.Context, userID, sessionID string) error {
	if err := m.store.Set(ctx, memoryKey(userID, sessionID, "role_asked"), "1", m.ttl); err != nil {
		return fmt.Errorf("set clarification flag: %w", err)
	}
	return nil
}

// Gaps returns remembered learning gaps.
func (m *Memory) Gaps(ctx context.Context, userID, sessionID string) ([]string, error) {
	v, err := m.store.Get(ctx, memoryKey(userID, sessionID, "gaps"))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get learning gaps: %w", err)
	}
	var gaps []string
	if err := json.Unmarshal([]byte(v), &gaps); err != nil {
		return nil, fmt.Errorf("decode learning gaps: %w", err)
	}
	return gaps, nil
}

// RememberGaps replaces the remembered learning gaps.
func (m *Memory) RememberGaps(ctx context.Context, userID, sessionID string, gaps []string) error {
	clean := make([]string, 0, len(gaps))
	for _, g := range gaps {
		if g != "" {
			clean = append(clean, g)
		}
	}
	if len(clean) > maxRememberedGaps {
		clean = clean[:maxRememberedGaps]
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("encode learning gaps: %w", err)
	}
	if err := m.store.Set(ctx, memoryKey(userID, sessionID, "gaps"), string(b), m.ttl); err != nil {
		return fmt.Errorf("set learning gaps: %w", err)
	}
	return nil
}
