// Package store persists conversation history.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
)

const (
	// MaxSummaries bounds the history sidebar listing.
	MaxSummaries = 40
	// UploadOnlyMessage is stored in place of a blank user message.
	UploadOnlyMessage = "Uploaded student work for analysis."
	// UploadOnlyTitle titles sessions that started with an upload only.
	UploadOnlyTitle = "Upload analysis"

	titleLength = 64
)

// Exchange is one persisted user/assistant pair.
type Exchange struct {
	UserID           string
	SessionID        string
	UserMessage      string
	AssistantMessage string
	At               time.Time
}

// Title derives the session title from the user message.
func (e Exchange) Title() string {
	trimmed := strings.TrimSpace(e.UserMessage)
	if trimmed == "" {
		return UploadOnlyTitle
	}
	return domain.TruncateRunes(trimmed, titleLength)
}

// Turns returns the two turns to append.
func (e Exchange) Turns() []domain.ConversationTurn {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	userContent := e.UserMessage
	if strings.TrimSpace(userContent) == "" {
		userContent = UploadOnlyMessage
	}
	return []domain.ConversationTurn{
		{Role: domain.TurnUser, Content: userContent, Timestamp: at},
		{Role: domain.TurnAssistant, Content: e.AssistantMessage, Timestamp: at},
	}
}

// Repository defines conversation history persistence.
type Repository interface {
	// ListSummaries returns up to limit sessions for a user, most recently updated first.
	ListSummaries(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error)

	// History returns all turns of a session in chronological order.
	History(ctx context.Context, userID, sessionID string) ([]domain.ConversationTurn, error)

	// SaveExchange appends a user/assistant pair and bumps the session's updated time.
	SaveExchange(ctx context.Context, ex Exchange) error

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxSummaries {
		return MaxSummaries
	}
	return limit
}
