// Package shaper builds the request sent across the reasoning boundary.
package shaper

import "github.com/ashureev/eduvane/internal/domain"

// DefaultHistoryWindow is the number of most recent turns forwarded.
const DefaultHistoryWindow = 12

// Shaper trims history and attaches session identity. It is stateless.
type Shaper struct {
	window int
}

// New creates a shaper keeping the last window turns. Non-positive uses the default.
func New(window int) Shaper {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return Shaper{window: window}
}

// Shape assembles a ReasoningRequest. Inputs are copied, never mutated.
func (s Shaper) Shape(body domain.TurnRequest, sess domain.Session, history []domain.ConversationTurn) domain.ReasoningRequest {
	window := s.window
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	start := 0
	if len(history) > window {
		start = len(history) - window
	}
	trimmed := make([]domain.ConversationTurn, len(history)-start)
	copy(trimmed, history[start:])

	uploads := make([]domain.Upload, len(body.Uploads))
	copy(uploads, body.Uploads)

	return domain.ReasoningRequest{
		UserID:    sess.UserID,
		Role:      sess.Role,
		SessionID: body.SessionID,
		Message:   body.Message,
		Uploads:   uploads,
		History:   trimmed,
	}
}

// Shape uses the default window.
func Shape(body domain.TurnRequest, sess domain.Session, history []domain.ConversationTurn) domain.ReasoningRequest {
	return New(DefaultHistoryWindow).Shape(body, sess, history)
}
