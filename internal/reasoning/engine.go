// Package reasoning is the only stage that authors user-facing prose.
//
// It turns an IntentRecord plus the extracted signal into a ReasoningOutput.
// When the grading provider is unavailable the score stays nil and the
// narrative says so; a grade is never guessed.
package reasoning

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/perception"
	"github.com/ashureev/eduvane/internal/provider"
)

const defaultReasonTimeout = 60 * time.Second

// lowConfidence marks extracted text that is probably unreliable.
const lowConfidence = 0.4

// Input is the structured context for one reasoning call.
type Input struct {
	Record  domain.IntentRecord
	Role    domain.Role
	Message string
	Signal  perception.Signal
	Uploads []domain.Upload
	History []domain.ConversationTurn
	// Gaps are learning gaps remembered for the session.
	Gaps []string
}

// Engine produces ReasoningOutput. A nil generator runs in perception-only mode.
type Engine struct {
	gen     provider.Generator
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine creates a reasoning engine.
func NewEngine(gen provider.Generator, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultReasonTimeout
	}
	return &Engine{gen: gen, timeout: timeout, logger: logger}
}

// Reason runs the stage for in. It never fails.
func (e *Engine) Reason(ctx context.Context, in Input) domain.ReasoningOutput {
	in.Record = in.Record.WithDefaults()
	switch in.Record.Action {
	case domain.ActionAnalyze:
		return e.analyze(ctx, in)
	case domain.ActionPractice:
		return e.practice(ctx, in)
	case domain.ActionHistory:
		return domain.ReasoningOutput{
			NarrativeText:      historyNarrative(in.Role, in.History),
			FollowUpSuggestion: followUpHistory,
		}
	default:
		return e.converse(ctx, in)
	}
}

func (e *Engine) call(ctx context.Context, prompt provider.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	out, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (e *Engine) converse(ctx context.Context, in Input) domain.ReasoningOutput {
	fallback := domain.ReasoningOutput{NarrativeText: conversationalNarrative(in.Role, in.Message)}
	if e.gen == nil || strings.TrimSpace(in.Message) == "" {
		return fallback
	}
	text, err := e.call(ctx, provider.Prompt{
		System:      tutorSystemPrompt(in.Role),
		User:        tutorUserPrompt(in),
		Temperature: 0.4,
		MaxTokens:   400,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			e.logger.Warn("reasoning: tutor reply failed", "error", err)
		}
		fallback.Degraded = true
		return fallback
	}
	return domain.ReasoningOutput{NarrativeText: text}
}

func tutorSystemPrompt(role domain.Role) string {
	tone := "neutral exploratory framing"
	switch role {
	case domain.RoleTeacher:
		tone = "professional, calm, observational framing; refer to the learner as \"the student\""
	case domain.RoleStudent:
		tone = "warm, direct, second-person framing"
	}
	return "You are Eduvane, a homework review tutor.\n" +
		"Answer in at most four sentences with " + tone + ".\n" +
		"Offer analysis of uploaded work or focused practice questions when relevant. No slang. No humor."
}

func tutorUserPrompt(in Input) string {
	var b strings.Builder
	recent := in.History
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}
	for _, t := range recent {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("user: ")
	b.WriteString(in.Message)
	return b.String()
}
