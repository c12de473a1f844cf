package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
)

// Fallback writes every exchange to both stores and reads from the primary,
// falling back to the secondary when the primary fails.
type Fallback struct {
	primary   Repository
	secondary Repository
	logger    *slog.Logger
}

var _ Repository = (*Fallback)(nil)

// NewFallback combines two repositories. A nil primary uses only the secondary.
func NewFallback(primary, secondary Repository, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// ListSummaries implements Repository.
func (f *Fallback) ListSummaries(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	if f.primary != nil {
		out, err := f.primary.ListSummaries(ctx, userID, limit)
		if err == nil {
			return out, nil
		}
		f.logger.Warn("history: primary list failed, using fallback", "user_id", userID, "error", err)
	}
	return f.secondary.ListSummaries(ctx, userID, limit)
}

// History implements Repository.
func (f *Fallback) History(ctx context.Context, userID, sessionID string) ([]domain.ConversationTurn, error) {
	if f.primary != nil {
		out, err := f.primary.History(ctx, userID, sessionID)
		if err == nil {
			return out, nil
		}
		f.logger.Warn("history: primary read failed, using fallback", "user_id", userID, "session_id", sessionID, "error", err)
	}
	return f.secondary.History(ctx, userID, sessionID)
}

// SaveExchange implements Repository. It fails only when no store accepted the write.
func (f *Fallback) SaveExchange(ctx context.Context, ex Exchange) error {
	secErr := f.secondary.SaveExchange(ctx, ex)
	if secErr != nil {
		f.logger.Warn("history: fallback write failed", "user_id", ex.UserID, "session_id", ex.SessionID, "error", secErr)
	}
	if f.primary == nil {
		return secErr
	}
	priErr := f.primary.SaveExchange(ctx, ex)
	if priErr != nil {
		f.logger.Warn("history: primary write failed", "user_id", ex.UserID, "session_id", ex.SessionID, "error", priErr)
		if secErr != nil {
			return errors.Join(priErr, secErr)
		}
	}
	return nil
}

// Ping implements Repository.
func (f *Fallback) Ping(ctx context.Context) error {
	if f.primary != nil {
		return f.primary.Ping(ctx)
	}
	return f.secondary.Ping(ctx)
}

// Close implements Repository.
func (f *Fallback) Close() error {
	var errs []error
	if f.primary != nil {
		errs = append(errs, f.primary.Close())
	}
	errs = append(errs, f.secondary.Close())
	return errors.Join(errs...)
}

// PruneBefore prunes the primary when it supports retention. The secondary
// expires entries through its own TTL.
func (f *Fallback) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p, ok := f.primary.(Pruner)
	if !ok {
		return 0, nil
	}
	return p.PruneBefore(ctx, cutoff)
}
