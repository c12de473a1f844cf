package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/provider"
)

func practiceTopic(in Input) string {
	if in.Record.Topic != "" {
		return in.Record.Topic
	}
	if len(in.Gaps) > 0 {
		return in.Gaps[0]
	}
	if in.Record.Subject != "" && in.Record.Subject != domain.DefaultSubject {
		return in.Record.Subject
	}
	return "the target skill"
}

func (e *Engine) practice(ctx context.Context, in Input) domain.ReasoningOutput {
	topic := practiceTopic(in)
	n := in.Record.Quantity

	var questions []string
	degraded := false
	if e.gen != nil {
		generated, err := e.generateQuestions(ctx, in.Record, topic)
		if err != nil {
			e.logger.Warn("reasoning: question generation failed", "error", err)
			degraded = true
		}
		questions = generated
	}
	if len(questions) > n {
		questions = questions[:n]
	}
	for i := len(questions); i < n; i++ {
		questions = append(questions, templateQuestion(topic, in.Record.Difficulty, i))
	}

	return domain.ReasoningOutput{
		NarrativeText:      practiceNarrative(in.Role, questions),
		FollowUpSuggestion: followUpPractice,
		GeneratedQuestions: questions,
		Degraded:           degraded,
	}
}

func (e *Engine) generateQuestions(ctx context.Context, rec domain.IntentRecord, topic string) ([]string, error) {
	text, err := e.call(ctx, provider.Prompt{
		System: fmt.Sprintf("Role: Expert curriculum designer in %s.\n"+
			"Requirements: high academic rigor, clear phrasing, diverse item types (conceptual, procedural, application).\n"+
			"Output: a JSON array of question strings only.", rec.Subject),
		User:        fmt.Sprintf("Create %d %s-level practice items for %q.", rec.Quantity, rec.Difficulty, topic),
		JSON:        true,
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	if err != nil {
		return nil, err
	}
	return parseQuestions(text)
}

// parseQuestions accepts an array of strings or of objects with a text field.
func parseQuestions(raw string) ([]string, error) {
	span, ok := provider.ExtractJSONArray(raw)
	if !ok {
		if obj, ok := provider.ExtractJSONObject(raw); ok {
			var wrapped struct {
				Questions json.RawMessage `json:"questions"`
			}
			if err := json.Unmarshal([]byte(obj), &wrapped); err == nil && len(wrapped.Questions) > 0 {
				return parseQuestions(string(wrapped.Questions))
			}
		}
		return nil, fmt.Errorf("no JSON array in question output")
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(span), &items); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			var obj struct {
				Text     string `json:"text"`
				Question string `json:"question"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			s = obj.Text
			if s == "" {
				s = obj.Question
			}
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
