package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Upload is an artifact attached to a turn.
type Upload struct {
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Base64Data string `json:"base64Data"`
}

// Decode returns the raw artifact bytes. Data URL prefixes are tolerated.
func (u Upload) Decode() ([]byte, error) {
	data := strings.TrimSpace(u.Base64Data)
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode upload %q: %w", u.FileName, err)
	}
	return raw, nil
}

// IsPDF returns true if the upload is a PDF document.
func (u Upload) IsPDF() bool {
	return strings.EqualFold(strings.TrimSpace(u.MimeType), "application/pdf")
}

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	SessionID string   `json:"sessionId"`
	Message   string   `json:"message"`
	Uploads   []Upload `json:"uploads"`
}

// TurnRole is the author of a conversation turn.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// ConversationTurn is one entry of the append-only conversation log.
type ConversationTurn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSummary lists a session in the history sidebar.
type ConversationSummary struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecentAssistantOutputs returns the contents of the last n assistant turns, most recent last.
func RecentAssistantOutputs(turns []ConversationTurn, n int) []string {
	out := make([]string, 0, n)
	for _, t := range turns {
		if t.Role == TurnAssistant {
			out = append(out, t.Content)
		}
	}
	if n >= 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
