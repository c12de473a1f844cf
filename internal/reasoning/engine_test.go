package reasoning

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/perception"
	"github.com/ashureev/eduvane/internal/provider"
)

func staticGen(text string, err error) provider.Generator {
	return provider.GeneratorFunc(func(context.Context, provider.Prompt) (provider.Output, error) {
		return provider.Output{Text: text}, err
	})
}

func pngUpload() domain.Upload {
	return domain.Upload{FileName: "work.png", MimeType: "image/png", Base64Data: base64.StdEncoding.EncodeToString([]byte("png"))}
}

func TestAnalyzeWithoutProviderLeavesScoreNil(t *testing.T) {
	t.Parallel()

	out := NewEngine(nil, 0, nil).Reason(context.Background(), Input{
		Record:  domain.IntentRecord{Action: domain.ActionAnalyze},
		Role:    domain.RoleStudent,
		Message: "check my fractions homework",
		Signal:  perception.Signal{Text: "1/2 + 1/3 = 2/5", Confidence: 0.9},
		Uploads: []domain.Upload{pngUpload()},
	})

	assert.Nil(t, out.Score)
	assert.True(t, out.Degraded)
	assert.True(t, strings.HasPrefix(out.NarrativeText, "You show partial understanding in fractions."))
	assert.Contains(t, out.NarrativeText, "No grade was assigned")
	assert.Len(t, out.GrowthSteps, 3)
	require.NotNil(t, out.HandwritingFeedback)
	assert.Equal(t, "Lines vary in tilt across the page.", out.HandwritingFeedback.LineConsistency)
	assert.Equal(t, followUpAnalysis, out.FollowUpSuggestion)
}

func TestAnalyzeClampsProviderScore(t *testing.T) {
	t.Parallel()

	gen := staticGen(`{"score": 134.6, "feedback": "The student adds denominators directly.", "improvementSteps": ["Find a common denominator", " "]}`, nil)
	out := NewEngine(gen, 0, nil).Reason(context.Background(), Input{
		Record: domain.IntentRecord{Action: domain.ActionAnalyze},
		Role:   domain.RoleTeacher,
		Signal: perception.Signal{Text: "1/2 + 1/3 = 2/5", Confidence: 0.9},
	})

	require.NotNil(t, out.Score)
	assert.Equal(t, 100, *out.Score)
	assert.False(t, out.Degraded)
	assert.Equal(t, "The student adds denominators directly.", out.NarrativeText)
	assert.Equal(t, []string{"Find a common denominator"}, out.GrowthSteps)
	assert.Equal(t, followUpAnalysis, out.FollowUpSuggestion)
}

func TestAnalyzeProviderFailureNeverGuessesScore(t *testing.T) {
	t.Parallel()

	for _, gen := range []provider.Generator{
		staticGen("", errors.New("503")),
		staticGen(`{"feedback": "Looks fine."}`, nil),
		staticGen("not json", nil),
	} {
		out := NewEngine(gen, 0, nil).Reason(context.Background(), Input{
			Record:  domain.IntentRecord{Action: domain.ActionAnalyze},
			Role:    domain.RoleUnknown,
			Uploads: []domain.Upload{pngUpload()},
		})
		assert.Nil(t, out.Score)
		assert.True(t, strings.HasPrefix(out.NarrativeText, "This work shows partial understanding"))
		assert.Contains(t, out.NarrativeText, "No text could be read from the upload")
	}
}

func TestAnalyzeSendsUploadsWhenSignalEmpty(t *testing.T) {
	t.Parallel()

	var parts []provider.Part
	gen := provider.GeneratorFunc(func(_ context.Context, p provider.Prompt) (provider.Output, error) {
		parts = p.Parts
		return provider.Output{Text: `{"score": 72, "feedback": "You solved most steps."}`}, nil
	})
	out := NewEngine(gen, 0, nil).Reason(context.Background(), Input{
		Record:  domain.IntentRecord{Action: domain.ActionAnalyze},
		Role:    domain.RoleStudent,
		Uploads: []domain.Upload{pngUpload()},
	})
	require.NotNil(t, out.Score)
	assert.Equal(t, 72, *out.Score)
	require.Len(t, parts, 1)
	assert.Equal(t, []byte("png"), parts[0].Data)
	assert.Len(t, out.GrowthSteps, 3)
}

func TestPracticeReturnsExactQuantity(t *testing.T) {
	t.Parallel()

	rec := domain.IntentRecord{Action: domain.ActionPractice, Subject: "Biology", Topic: "photosynthesis", Quantity: 5}

	out := NewEngine(nil, 0, nil).Reason(context.Background(), Input{Record: rec, Role: domain.RoleStudent})
	require.Len(t, out.GeneratedQuestions, 5)
	assert.Contains(t, out.GeneratedQuestions[0], "photosynthesis")
	assert.True(t, strings.HasPrefix(out.NarrativeText, "Here are focused practice questions linked to your current gaps:\n1. "))
	assert.Nil(t, out.Score)

	short := staticGen(`[{"text": "What does chlorophyll absorb?"}, "Name the products of photosynthesis."]`, nil)
	out = NewEngine(short, 0, nil).Reason(context.Background(), Input{Record: rec, Role: domain.RoleTeacher})
	require.Len(t, out.GeneratedQuestions, 5)
	assert.Equal(t, "What does chlorophyll absorb?", out.GeneratedQuestions[0])
	assert.Equal(t, "Name the products of photosynthesis.", out.GeneratedQuestions[1])

	long := staticGen(`{"questions": ["q1","q2","q3","q4","q5","q6","q7"]}`, nil)
	out = NewEngine(long, 0, nil).Reason(context.Background(), Input{Record: rec, Role: domain.RoleTeacher})
	assert.Equal(t, []string{"q1", "q2", "q3", "q4", "q5"}, out.GeneratedQuestions)
}

func TestPracticeUsesRememberedGaps(t *testing.T) {
	t.Parallel()

	out := NewEngine(nil, 0, nil).Reason(context.Background(), Input{
		Record: domain.IntentRecord{Action: domain.ActionPractice, Quantity: 12},
		Role:   domain.RoleStudent,
		Gaps:   []string{"decimals"},
	})
	require.Len(t, out.GeneratedQuestions, 12)
	assert.Contains(t, out.GeneratedQuestions[0], "decimals")
	assert.True(t, strings.HasPrefix(out.GeneratedQuestions[10], "(Medium challenge)"))
}

func TestHistoryNarrative(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil, 0, nil)
	out := e.Reason(context.Background(), Input{Record: domain.IntentRecord{Action: domain.ActionHistory}, Role: domain.RoleStudent})
	assert.Contains(t, out.NarrativeText, "no recorded progress")

	out = e.Reason(context.Background(), Input{
		Record: domain.IntentRecord{Action: domain.ActionHistory},
		Role:   domain.RoleTeacher,
		History: []domain.ConversationTurn{
			{Role: domain.TurnUser, Content: "review algebra"},
			{Role: domain.TurnAssistant, Content: "..."},
		},
	})
	assert.Equal(t, "The student has worked through 1 requests in this session with 1 responses, focusing on algebra.", out.NarrativeText)
}

func TestConversationalFallsBackToTemplate(t *testing.T) {
	t.Parallel()

	out := NewEngine(staticGen("", errors.New("down")), 0, nil).Reason(context.Background(), Input{
		Record:  domain.IntentRecord{Action: domain.ActionConversational},
		Role:    domain.RoleTeacher,
		Message: "hello",
	})
	assert.True(t, out.Degraded)
	assert.True(t, strings.HasPrefix(out.NarrativeText, "The request is understood."))

	out = NewEngine(staticGen("Hi! Share your work when ready.", nil), 0, nil).Reason(context.Background(), Input{
		Record:  domain.IntentRecord{Action: domain.ActionUnknown},
		Role:    domain.RoleStudent,
		Message: "hello",
	})
	assert.Equal(t, "Hi! Share your work when ready.", out.NarrativeText)
}

func TestExtractLearningGaps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"fractions", "decimals", "algebra"}, ExtractLearningGaps("algebra, fractions, decimals and geometry"))
	assert.Equal(t, []string{"my essay on the causes of the first world"}, ExtractLearningGaps("my essay on the causes of the first world war"))
	assert.Empty(t, ExtractLearningGaps("   "))
}

func TestHandwritingFeedbackByUploadKind(t *testing.T) {
	t.Parallel()

	assert.Nil(t, handwritingFor(nil))

	pdf := domain.Upload{FileName: "work.pdf", MimeType: "application/pdf", Base64Data: "cGRm"}
	got := handwritingFor([]domain.Upload{pngUpload(), pdf})
	require.NotNil(t, got)
	assert.Equal(t, "Readable in most sections.", got.Legibility)
	assert.Len(t, got.Suggestions, 2)

	got = handwritingFor([]domain.Upload{pngUpload()})
	require.NotNil(t, got)
	assert.Len(t, got.Suggestions, 3)
}
