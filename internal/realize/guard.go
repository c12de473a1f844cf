// Package realize optionally rewrites reasoning output into fresh phrasing.
//
// The guard makes at most two provider calls within one shared time budget.
// Any failure returns the base text unchanged together with a typed reason,
// so callers never see an error from this layer.
package realize

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/provider"
)

const (
	// MinTimeout is the smallest accepted realization budget.
	MinTimeout = 100 * time.Millisecond
	// RetryMargin is the budget that must remain for a second attempt.
	RetryMargin = 120 * time.Millisecond
	// DefaultRecentWindow bounds the outputs sent as avoidExactOutputs.
	DefaultRecentWindow = 8
)

// Config controls the guard.
type Config struct {
	Enabled      bool
	Timeout      time.Duration
	RecentWindow int
}

// Guard implements the realization state machine.
type Guard struct {
	gen     provider.Generator
	enabled bool
	timeout time.Duration
	window  int
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces the time source used to measure the shared budget.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard. A nil generator means no provider credential is configured.
func NewGuard(gen provider.Generator, cfg Config, logger *slog.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{
		gen:     gen,
		enabled: cfg.Enabled,
		timeout: max(MinTimeout, cfg.Timeout),
		window:  cfg.RecentWindow,
		now:     time.Now,
		logger:  logger,
	}
	if g.window <= 0 {
		g.window = DefaultRecentWindow
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Timeout returns the effective budget.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// Realize returns a validated rewrite or the base text with a fallback reason.
func (g *Guard) Realize(ctx context.Context, req domain.RealizationRequest) domain.RealizationResult {
	if !g.enabled {
		return fallback(req, domain.FallbackDisabled)
	}
	if g.gen == nil {
		return fallback(req, domain.FallbackMissingConfig)
	}

	start := g.now()
	recent := req.RecentOutputs

	first, reason, terminal := g.attempt(ctx, req, recent, g.timeout)
	if reason == "" {
		return g.applied(req, first, 1)
	}
	if terminal {
		return g.fallback(req, reason)
	}

	remaining := g.timeout - g.now().Sub(start)
	if remaining > RetryMargin {
		retryRecent := make([]string, len(recent), len(recent)+1)
		copy(retryRecent, recent)
		if first.ResponseText != "" {
			retryRecent = append(retryRecent, first.ResponseText)
		}
		var second candidate
		second, reason, _ = g.attempt(ctx, req, retryRecent, remaining)
		if reason == "" {
			return g.applied(req, second, 2)
		}
	}
	return g.fallback(req, reason)
}

// attempt runs one provider call. It returns the parsed candidate and an empty
// reason on success. terminal is set for transport failures that end the turn.
func (g *Guard) attempt(ctx context.Context, req domain.RealizationRequest, recent []string, budget time.Duration) (candidate, domain.FallbackReason, bool) {
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		out provider.Output
		err error
	}
	done := make(chan result, 1)
	prompt := buildPrompt(req, recent, g.window)
	go func() {
		out, err := g.gen.Generate(actx, prompt)
		done <- result{out: out, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-actx.Done():
		// The call is abandoned; its result is dropped into the buffered channel.
		return candidate{}, domain.FallbackTimeout, true
	}

	if r.err != nil {
		switch {
		case provider.IsTimeout(r.err), errors.Is(r.err, context.DeadlineExceeded), errors.Is(r.err, context.Canceled):
			return candidate{}, domain.FallbackTimeout, true
		case provider.IsEmptyOutput(r.err):
			return candidate{}, domain.FallbackInvalidOutput, false
		default:
			g.logger.Warn("realize: provider error", "session_id", req.SessionID, "error", r.err)
			return candidate{}, domain.FallbackProviderError, true
		}
	}

	c, ok := parseCandidate(r.out.Text)
	if !ok {
		return candidate{}, domain.FallbackInvalidOutput, false
	}
	if !accept(req, c, normalizedSet(recent)) {
		return c, domain.FallbackDuplicateOutput, false
	}
	return c, "", false
}

func (g *Guard) applied(req domain.RealizationRequest, c candidate, attempt int) domain.RealizationResult {
	followUp := req.BaseFollowUpSuggestion
	if followUp != "" && c.FollowUpSuggestion != "" {
		followUp = c.FollowUpSuggestion
	}
	g.logger.Debug("realize: rewrite applied", "session_id", req.SessionID, "attempt", attempt)
	return domain.RealizationResult{
		ResponseText:       c.ResponseText,
		FollowUpSuggestion: followUp,
		Applied:            true,
	}
}

func (g *Guard) fallback(req domain.RealizationRequest, reason domain.FallbackReason) domain.RealizationResult {
	g.logger.Info("realize: using base text", "session_id", req.SessionID, "reason", reason)
	return fallback(req, reason)
}

func fallback(req domain.RealizationRequest, reason domain.FallbackReason) domain.RealizationResult {
	return domain.RealizationResult{
		ResponseText:       req.BaseResponseText,
		FollowUpSuggestion: req.BaseFollowUpSuggestion,
		Applied:            false,
		FallbackReason:     reason,
	}
}
