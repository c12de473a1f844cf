package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const retentionInterval = 30 * time.Minute

// Pruner deletes conversations last updated before a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneBefore deletes conversations, and their turns, last updated before cutoff.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var deleted int64
	err := withBusyRetry(ctx, "prune conversations", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM conversation_turns
			WHERE (user_id, session_id) IN (
				SELECT user_id, session_id FROM conversations WHERE updated_at < ?
			)`, cutoff.UnixNano()); err != nil {
			return fmt.Errorf("delete turns: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, cutoff.UnixNano())
		if err != nil {
			return fmt.Errorf("delete conversations: %w", err)
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return tx.Commit()
	})
	return deleted, err
}

// StartRetentionWorker periodically prunes conversations idle for longer than
// retention. It returns immediately; the worker stops with ctx.
func StartRetentionWorker(ctx context.Context, pruner Pruner, retention time.Duration, logger *slog.Logger) {
	if pruner == nil || retention <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(retentionInterval)
	go func() {
		defer ticker.Stop()
		logger.Info("History retention worker started", "interval", retentionInterval, "retention", retention)

		sweep := func() {
			n, err := pruner.PruneBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("History retention sweep failed", "error", err)
				}
				return
			}
			if n > 0 {
				logger.Info("History retention sweep complete", "conversations_deleted", n)
			}
		}

		sweep()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-ctx.Done():
				logger.Info("History retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
