package engine

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ashureev/eduvane/internal/domain"
)

type fakeResponder struct {
	got domain.ReasoningRequest
	err error
}

func (f *fakeResponder) Respond(_ context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	f.got = req
	if f.err != nil {
		return domain.ReasoningResponse{}, f.err
	}
	score := 81
	return domain.ReasoningResponse{
		SessionID:          req.SessionID,
		Intent:             domain.IntentAnalysis,
		Role:               req.Role,
		ResponseText:       "You solved most steps.",
		FollowUpSuggestion: "Upload the next attempt.",
		GeneratedQuestions: []string{"q1"},
		Score:              &score,
		HandwritingFeedback: &domain.HandwritingFeedback{
			Legibility:  "Readable.",
			Suggestions: []string{"Slow down."},
		},
	}, nil
}

func (f *fakeResponder) Classify(_ context.Context, req domain.ReasoningRequest) (domain.IntentResult, error) {
	return domain.IntentResult{
		Intent: domain.IntentQuestionGeneration,
		Role:   req.Role,
		Record: domain.IntentRecord{Action: domain.ActionPractice, Subject: "Biology", Topic: "photosynthesis", Difficulty: domain.DifficultyMedium, Quantity: 5},
	}, nil
}

func startEngine(t *testing.T, responder *fakeResponder, serverSecret, clientSecret string) *GrpcClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(responder, serverSecret, nil)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cfg := DefaultGrpcClientConfig("bufnet")
	cfg.SharedSecret = clientSecret
	return NewGrpcClient(conn, cfg, nil)
}

func TestRemoteRespondRoundTrip(t *testing.T) {
	t.Parallel()

	responder := &fakeResponder{}
	client := startEngine(t, responder, "s3cret", "s3cret")

	req := domain.ReasoningRequest{
		UserID:    "u1",
		Role:      domain.RoleStudent,
		SessionID: "s1",
		Message:   "check this",
		Uploads:   []domain.Upload{{FileName: "a.png", MimeType: "image/png", Base64Data: "aGk="}},
		History:   []domain.ConversationTurn{{Role: domain.TurnUser, Content: "earlier"}},
	}
	resp, err := client.Respond(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, domain.IntentAnalysis, resp.Intent)
	assert.Equal(t, "You solved most steps.", resp.ResponseText)
	require.NotNil(t, resp.Score)
	assert.Equal(t, 81, *resp.Score)
	require.NotNil(t, resp.HandwritingFeedback)
	assert.Equal(t, []string{"Slow down."}, resp.HandwritingFeedback.Suggestions)

	assert.Equal(t, "u1", responder.got.UserID)
	require.Len(t, responder.got.Uploads, 1)
	assert.Equal(t, "aGk=", responder.got.Uploads[0].Base64Data)
	require.Len(t, responder.got.History, 1)
	assert.Equal(t, "earlier", responder.got.History[0].Content)

	res, err := client.Classify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentQuestionGeneration, res.Intent)
	assert.Equal(t, 5, res.Record.Quantity)

	require.NoError(t, client.Health(context.Background()))
}

func TestRemoteRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	client := startEngine(t, &fakeResponder{}, "s3cret", "wrong")
	_, err := client.Respond(context.Background(), domain.ReasoningRequest{SessionID: "s1"})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(errors.Unwrap(err)))

	require.NoError(t, client.Health(context.Background()))
}

func TestRemoteRespondError(t *testing.T) {
	t.Parallel()

	client := startEngine(t, &fakeResponder{err: errors.New("pipeline down")}, "", "")
	_, err := client.Respond(context.Background(), domain.ReasoningRequest{SessionID: "s1"})
	assert.Error(t, err)
}
