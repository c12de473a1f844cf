package shaper

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/eduvane/internal/domain"
)

func turns(n int) []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		role := domain.TurnUser
		if i%2 == 1 {
			role = domain.TurnAssistant
		}
		out[i] = domain.ConversationTurn{Role: role, Content: fmt.Sprintf("turn-%d", i), Timestamp: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestShapeKeepsMostRecentTwelve(t *testing.T) {
	t.Parallel()

	history := turns(20)
	sess := domain.Session{UserID: "u1", Role: domain.RoleStudent}
	body := domain.TurnRequest{SessionID: "s1", Message: "hi"}

	req := Shape(body, sess, history)
	require.Len(t, req.History, 12)
	assert.Equal(t, "turn-8", req.History[0].Content)
	assert.Equal(t, "turn-19", req.History[11].Content)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, domain.RoleStudent, req.Role)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "hi", req.Message)
}

func TestShapeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	history := turns(3)
	body := domain.TurnRequest{SessionID: "s1", Uploads: []domain.Upload{{FileName: "a.png"}}}

	req := Shape(body, domain.Session{UserID: "u1"}, history)
	req.History[0].Content = "changed"
	req.Uploads[0].FileName = "changed.png"

	assert.Equal(t, "turn-0", history[0].Content)
	assert.Equal(t, "a.png", body.Uploads[0].FileName)
	assert.Len(t, history, 3)
}

func TestShapeCustomWindow(t *testing.T) {
	t.Parallel()

	req := New(4).Shape(domain.TurnRequest{SessionID: "s"}, domain.Session{}, turns(10))
	require.Len(t, req.History, 4)
	assert.Equal(t, "turn-6", req.History[0].Content)

	req = New(0).Shape(domain.TurnRequest{SessionID: "s"}, domain.Session{}, nil)
	assert.Empty(t, req.History)
	assert.NotNil(t, req.Uploads)
}
