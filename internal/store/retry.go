package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	maxBusyRetries = 5
	baseBusyDelay  = 10 * time.Millisecond
)

// isSQLiteConflict reports SQLITE_BUSY or "database is locked" errors,
// both of which warrant a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs fn, retrying SQLite conflicts with exponential backoff.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = fn()
		if !isSQLiteConflict(err) {
			return err
		}
		delay := baseBusyDelay * time.Duration(1<<attempt)
		slog.Debug("sqlite busy, retrying", "op", op, "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
