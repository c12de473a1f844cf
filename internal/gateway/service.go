// Package gateway runs one user turn end to end: validation, per-session
// serialization, history shaping, the reasoning boundary, realization and
// persistence.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/pipeline"
	"github.com/ashureev/eduvane/internal/realize"
	"github.com/ashureev/eduvane/internal/shaper"
	"github.com/ashureev/eduvane/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrNoSession is returned when the caller has no resolved identity.
	ErrNoSession = errors.New("no active session")
	// ErrResponder wraps failures of the reasoning boundary.
	ErrResponder = errors.New("reasoning boundary failed")
)

// ValidationError rejects a malformed turn.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// RealizationMeta reports what the realization guard did for the turn.
type RealizationMeta struct {
	Applied        bool                  `json:"applied"`
	FallbackReason domain.FallbackReason `json:"fallbackReason,omitempty"`
}

// TurnResponse is the final user-facing response.
type TurnResponse struct {
	domain.ReasoningResponse
	Realization RealizationMeta `json:"realization"`
}

// Config tunes the service.
type Config struct {
	HistoryWindow int
	RecentWindow  int
}

// Service runs turns.
type Service struct {
	responder    pipeline.Responder
	guard        *realize.Guard
	repo         store.Repository
	shaper       shaper.Shaper
	recentWindow int
	convLog      ConversationLogger
	locks        *sessionLocks
	now          func() time.Time
	logger       *slog.Logger
}

// NewService creates a Service. convLog may be nil.
func NewService(responder pipeline.Responder, guard *realize.Guard, repo store.Repository, cfg Config, convLog ConversationLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = realize.DefaultRecentWindow
	}
	return &Service{
		responder:    responder,
		guard:        guard,
		repo:         repo,
		shaper:       shaper.New(cfg.HistoryWindow),
		recentWindow: cfg.RecentWindow,
		convLog:      convLog,
		locks:        newSessionLocks(),
		now:          time.Now,
		logger:       logger,
	}
}

// Validate checks the shape of an inbound turn.
func Validate(req domain.TurnRequest) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return &ValidationError{Message: "sessionId is required."}
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Uploads) == 0 {
		return &ValidationError{Message: "Message or upload is required."}
	}
	for _, u := range req.Uploads {
		if strings.TrimSpace(u.FileName) == "" || strings.TrimSpace(u.MimeType) == "" || strings.TrimSpace(u.Base64Data) == "" {
			return &ValidationError{Message: "Each upload needs fileName, mimeType and base64Data."}
		}
		if _, err := u.Decode(); err != nil {
			return &ValidationError{Message: fmt.Sprintf("Upload %q is not valid base64.", u.FileName)}
		}
	}
	return nil
}

// Respond runs one turn. Turns of the same session never overlap.
func (s *Service) Respond(ctx context.Context, sess domain.Session, req domain.TurnRequest) (TurnResponse, error) {
	if sess.UserID == "" {
		return TurnResponse{}, ErrNoSession
	}
	if err := Validate(req); err != nil {
		return TurnResponse{}, err
	}

	release, err := s.locks.acquire(ctx, sess.UserID+"\x00"+req.SessionID)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("wait for session turn: %w", err)
	}
	defer release()

	history, err := s.repo.History(ctx, sess.UserID, req.SessionID)
	if err != nil {
		s.logger.Warn("gateway: load history failed", "user_id", sess.UserID, "session_id", req.SessionID, "error", err)
		history = nil
	}

	s.logEvent(ctx, sess.UserID, req.SessionID, "inbound", "turn_user_message", req.Message, map[string]any{
		"uploads": len(req.Uploads),
		"role":    sess.Role,
	})

	reasoned, err := s.responder.Respond(ctx, s.shaper.Shape(req, sess, history))
	if err != nil {
		s.logger.Error("gateway: reasoning failed", "user_id", sess.UserID, "session_id", req.SessionID, "error", err)
		return TurnResponse{}, fmt.Errorf("%w: %w", ErrResponder, err)
	}

	result := s.guard.Realize(ctx, domain.RealizationRequest{
		SessionID:              req.SessionID,
		Intent:                 reasoned.Intent,
		Role:                   reasoned.Role,
		UserMessage:            req.Message,
		BaseResponseText:       reasoned.ResponseText,
		BaseFollowUpSuggestion: reasoned.FollowUpSuggestion,
		RecentOutputs:          domain.RecentAssistantOutputs(history, s.recentWindow),
	})
	if !result.Applied {
		s.logger.Info("gateway: realization fallback", "session_id", req.SessionID, "reason", result.FallbackReason)
	}

	final := reasoned
	final.ResponseText = result.ResponseText
	final.FollowUpSuggestion = result.FollowUpSuggestion

	if err := s.repo.SaveExchange(ctx, store.Exchange{
		UserID:           sess.UserID,
		SessionID:        req.SessionID,
		UserMessage:      req.Message,
		AssistantMessage: final.ResponseText,
		At:               s.now(),
	}); err != nil {
		// The response is still returned; only this exchange is missing from history.
		s.logger.Error("gateway: persist exchange failed", "user_id", sess.UserID, "session_id", req.SessionID, "error", err)
	}

	s.logEvent(ctx, sess.UserID, req.SessionID, "outbound", "turn_assistant_message", final.ResponseText, map[string]any{
		"intent":                 final.Intent,
		"role":                   final.Role,
		"realization_applied":    result.Applied,
		"realization_fallback":   result.FallbackReason,
		"generated_question_len": len(final.GeneratedQuestions),
	})

	return TurnResponse{
		ReasoningResponse: final,
		Realization:       RealizationMeta{Applied: result.Applied, FallbackReason: result.FallbackReason},
	}, nil
}

// Classify returns the intent of a message without running reasoning.
// A session id is generated when the request has none.
func (s *Service) Classify(ctx context.Context, sess domain.Session, req domain.TurnRequest) (domain.IntentResult, string, error) {
	if sess.UserID == "" {
		return domain.IntentResult{}, "", ErrNoSession
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = "intent-" + uuid.NewString()
	}
	req.SessionID = sessionID
	if err := Validate(req); err != nil {
		return domain.IntentResult{}, sessionID, err
	}

	res, err := s.responder.Classify(ctx, s.shaper.Shape(req, sess, nil))
	if err != nil {
		return domain.IntentResult{}, sessionID, fmt.Errorf("%w: %w", ErrResponder, err)
	}
	return res, sessionID, nil
}

// Summaries lists the caller's sessions, most recent first.
func (s *Service) Summaries(ctx context.Context, sess domain.Session) ([]domain.ConversationSummary, error) {
	if sess.UserID == "" {
		return nil, ErrNoSession
	}
	summaries, err := s.repo.ListSummaries(ctx, sess.UserID, store.MaxSummaries)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return summaries, nil
}

// History returns the turns of one session.
func (s *Service) History(ctx context.Context, sess domain.Session, sessionID string) ([]domain.ConversationTurn, error) {
	if sess.UserID == "" {
		return nil, ErrNoSession
	}
	turns, err := s.repo.History(ctx, sess.UserID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return turns, nil
}

type channelKey struct{}

// WithChannel tags conversation log events for turns run with ctx.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

func channelFrom(ctx context.Context) string {
	if ch, ok := ctx.Value(channelKey{}).(string); ok && ch != "" {
		return ch
	}
	return "chat_http"
}

func (s *Service) logEvent(ctx context.Context, userID, sessionID, direction, eventType, content string, meta map[string]any) {
	s.convLog.Log(ConversationLogEvent{
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channelFrom(ctx),
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
