package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/provider"
)

func TestHeuristicPracticeRequest(t *testing.T) {
	t.Parallel()

	rec := Heuristic("Generate 5 questions on photosynthesis", false)
	assert.Equal(t, domain.ActionPractice, rec.Action)
	assert.Equal(t, "Biology", rec.Subject)
	assert.Equal(t, "photosynthesis", rec.Topic)
	assert.Equal(t, 5, rec.Quantity)
	assert.Equal(t, domain.DifficultyMedium, rec.Difficulty)
}

func TestHeuristicActions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text    string
		uploads bool
		want    domain.Action
	}{
		{"", true, domain.ActionAnalyze},
		{"please review my essay", false, domain.ActionAnalyze},
		{"show my progress", false, domain.ActionHistory},
		{"Hello!", false, domain.ActionConversational},
		{"what is the capital of France", false, domain.ActionUnknown},
		{"give me a quiz", false, domain.ActionPractice},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Heuristic(tc.text, tc.uploads).Action, "text %q", tc.text)
	}
}

func TestHeuristicQuantityAndDifficulty(t *testing.T) {
	t.Parallel()

	rec := Heuristic("I need three hard practice problems about linear equations", false)
	assert.Equal(t, 3, rec.Quantity)
	assert.Equal(t, domain.DifficultyHard, rec.Difficulty)
	assert.Equal(t, "linear equations", rec.Topic)
	assert.Equal(t, "Mathematics", rec.Subject)

	rec = Heuristic("Give me 100 questions on fractions", false)
	assert.Equal(t, domain.MaxQuantity, rec.Quantity)

	rec = Heuristic("practice please", false)
	assert.Equal(t, domain.DefaultQuantity, rec.Quantity)
	assert.Equal(t, domain.DefaultSubject, rec.Subject)
}

func TestHeuristicQuantityNeedsPracticeNoun(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"grade 7 quiz on fractions":                   domain.DefaultQuantity,
		"a quiz for year 9 students":                  domain.DefaultQuantity,
		"grade 7 math questions":                      domain.DefaultQuantity,
		"quiz me on chapter 12":                       domain.DefaultQuantity,
		"grade 7 quiz with 4 questions":               4,
		"generate a couple of questions on motion":    2,
		"make twelve practice exercises for algebra":  12,
		"Give me 8 short word problems on percentage": 8,
	}
	for text, want := range cases {
		assert.Equal(t, want, Heuristic(text, false).Quantity, "text %q", text)
	}
}

func TestClassifierUsesProvider(t *testing.T) {
	t.Parallel()

	gen := provider.GeneratorFunc(func(_ context.Context, p provider.Prompt) (provider.Output, error) {
		assert.True(t, p.JSON)
		return provider.Output{Text: `Sure: {"action":"practice","subject":"Chemistry","topic":"acids","difficulty":"easy","quantity":"7"}`}, nil
	})
	rec := NewClassifier(gen, 0, nil).Classify(context.Background(), "acid practice", false)
	assert.Equal(t, domain.IntentRecord{
		Action:     domain.ActionPractice,
		Subject:    "Chemistry",
		Topic:      "acids",
		Difficulty: domain.DifficultyEasy,
		Quantity:   7,
	}, rec)
}

func TestClassifierFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	failing := provider.GeneratorFunc(func(context.Context, provider.Prompt) (provider.Output, error) {
		return provider.Output{}, errors.New("unavailable")
	})
	malformed := provider.GeneratorFunc(func(context.Context, provider.Prompt) (provider.Output, error) {
		return provider.Output{Text: "I think it's practice"}, nil
	})

	want := Heuristic("Generate 5 questions on photosynthesis", false)
	for _, gen := range []provider.Generator{failing, malformed, nil} {
		got := NewClassifier(gen, 0, nil).Classify(context.Background(), "Generate 5 questions on photosynthesis", false)
		assert.Equal(t, want, got)
	}
}

func TestClassifierUploadsForceAnalyze(t *testing.T) {
	t.Parallel()

	gen := provider.GeneratorFunc(func(context.Context, provider.Prompt) (provider.Output, error) {
		return provider.Output{Text: `{"action":"CONVERSATIONAL","quantity":0}`}, nil
	})
	rec := NewClassifier(gen, 0, nil).Classify(context.Background(), "here is my homework", true)
	assert.Equal(t, domain.ActionAnalyze, rec.Action)
	assert.Equal(t, domain.DefaultQuantity, rec.Quantity)
}
