package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/provider"
)

type gradingPayload struct {
	Role                string  `json:"role"`
	Subject             string  `json:"subject"`
	Topic               string  `json:"topic"`
	StudentMessage      string  `json:"studentMessage"`
	ExtractedText       string  `json:"extractedText"`
	ExtractedConfidence float64 `json:"extractedConfidence"`
}

type gradingResult struct {
	Score            *float64 `json:"score"`
	Feedback         string   `json:"feedback"`
	ImprovementSteps []string `json:"improvementSteps"`
	FollowUp         string   `json:"followUpSuggestion"`
}

func gradingSystemPrompt(role domain.Role) string {
	return fmt.Sprintf(`You are the Eduvane grading engine.
Identify conceptual versus procedural errors in the submitted work and compute a mastery score from 0 to 100.
Write narrative feedback for growth addressed to a %s. Start the feedback with %q.
Give exactly 3 specific, actionable improvement steps.
Return JSON only: {"score": <integer>, "feedback": "<text>", "improvementSteps": ["..."], "followUpSuggestion": "<text>"}`,
		strings.ToLower(string(role)), rolePrefix(role))
}

func (e *Engine) analyze(ctx context.Context, in Input) domain.ReasoningOutput {
	gaps := in.Gaps
	if len(gaps) == 0 {
		gaps = ExtractLearningGaps(strings.TrimSpace(in.Message + " " + in.Signal.Text))
	}
	out := domain.ReasoningOutput{
		FollowUpSuggestion:  followUpAnalysis,
		HandwritingFeedback: handwritingFor(in.Uploads),
	}

	if e.gen != nil {
		if graded, ok := e.grade(ctx, in); ok {
			graded.HandwritingFeedback = out.HandwritingFeedback
			if graded.FollowUpSuggestion == "" {
				graded.FollowUpSuggestion = out.FollowUpSuggestion
			}
			if len(graded.GrowthSteps) == 0 {
				graded.GrowthSteps = defaultGrowthSteps(gaps)
			}
			return graded
		}
	}

	parts := []string{analysisNarrative(in.Role, gaps)}
	if len(in.Uploads) > 0 && in.Signal.Empty() {
		parts = append(parts, unreadableNotice(in.Role))
	}
	parts = append(parts, ungradedNotice(in.Role))
	out.NarrativeText = strings.Join(parts, " ")
	out.GrowthSteps = defaultGrowthSteps(gaps)
	out.Degraded = true
	return out
}

func (e *Engine) grade(ctx context.Context, in Input) (domain.ReasoningOutput, bool) {
	payload, err := json.Marshal(gradingPayload{
		Role:                string(in.Role),
		Subject:             in.Record.Subject,
		Topic:               in.Record.Topic,
		StudentMessage:      in.Message,
		ExtractedText:       in.Signal.Text,
		ExtractedConfidence: in.Signal.Confidence,
	})
	if err != nil {
		return domain.ReasoningOutput{}, false
	}

	prompt := provider.Prompt{
		System:      gradingSystemPrompt(in.Role),
		User:        string(payload),
		JSON:        true,
		Temperature: 0.2,
		MaxTokens:   1200,
	}
	// Let the model read the artifact itself when perception found nothing reliable.
	if in.Signal.Empty() || in.Signal.Confidence < lowConfidence {
		for _, u := range in.Uploads {
			data, err := u.Decode()
			if err != nil {
				continue
			}
			prompt.Parts = append(prompt.Parts, provider.Part{MimeType: u.MimeType, Data: data})
		}
	}
	if in.Signal.Empty() && len(prompt.Parts) == 0 && strings.TrimSpace(in.Message) == "" {
		return domain.ReasoningOutput{}, false
	}

	text, err := e.call(ctx, prompt)
	if err != nil {
		e.logger.Warn("reasoning: grading call failed", "error", err)
		return domain.ReasoningOutput{}, false
	}
	res, err := parseGrading(text)
	if err != nil {
		e.logger.Warn("reasoning: malformed grading output", "error", err)
		return domain.ReasoningOutput{}, false
	}

	score := clampScore(*res.Score)
	steps := make([]string, 0, len(res.ImprovementSteps))
	for _, s := range res.ImprovementSteps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	return domain.ReasoningOutput{
		Score:              &score,
		NarrativeText:      strings.TrimSpace(res.Feedback),
		FollowUpSuggestion: strings.TrimSpace(res.FollowUp),
		GrowthSteps:        steps,
	}, true
}

func parseGrading(raw string) (gradingResult, error) {
	span, ok := provider.ExtractJSONObject(raw)
	if !ok {
		return gradingResult{}, fmt.Errorf("no JSON object in grading output")
	}
	var res gradingResult
	if err := json.Unmarshal([]byte(span), &res); err != nil {
		return gradingResult{}, fmt.Errorf("decode grading: %w", err)
	}
	if res.Score == nil || math.IsNaN(*res.Score) {
		return gradingResult{}, fmt.Errorf("grading missing score")
	}
	if strings.TrimSpace(res.Feedback) == "" {
		return gradingResult{}, fmt.Errorf("grading missing feedback")
	}
	return res, nil
}

func clampScore(v float64) int {
	n := int(math.Round(v))
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}
