package realize

import (
	"encoding/json"
	"strings"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/provider"
)

const (
	realizeTemperature = 0.8
	realizeMaxTokens   = 220
)

var systemPrompt = strings.Join([]string{
	"You are Eduvane linguistic realization layer.",
	"Rewrite text with fresh natural language while preserving exact educational intent.",
	"Do not change diagnostic meaning, severity, instructional boundaries, or requested action.",
	"Role constraints:",
	"- STUDENT: warm, direct, second-person framing.",
	"- TEACHER: professional, calm, observational framing.",
	"- UNKNOWN: neutral exploratory framing.",
	"No slang. No humor injection. No policy drift. No added claims.",
	"Keep length near original (within +/-20%).",
	"Output only valid JSON with keys: responseText, followUpSuggestion.",
}, "\n")

type userPayload struct {
	Task                   string        `json:"task"`
	Intent                 domain.Intent `json:"intent"`
	Role                   domain.Role   `json:"role"`
	UserMessage            string        `json:"userMessage"`
	BaseResponseText       string        `json:"baseResponseText"`
	BaseFollowUpSuggestion *string       `json:"baseFollowUpSuggestion"`
	AvoidExactOutputs      []string      `json:"avoidExactOutputs"`
}

func buildPrompt(req domain.RealizationRequest, recent []string, window int) provider.Prompt {
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	avoid := make([]string, len(recent))
	copy(avoid, recent)

	payload := userPayload{
		Task:              "Rewrite with controlled linguistic variability.",
		Intent:            req.Intent,
		Role:              req.Role,
		UserMessage:       req.UserMessage,
		BaseResponseText:  req.BaseResponseText,
		AvoidExactOutputs: avoid,
	}
	if req.BaseFollowUpSuggestion != "" {
		fu := req.BaseFollowUpSuggestion
		payload.BaseFollowUpSuggestion = &fu
	}
	// Marshalling plain strings cannot fail.
	user, _ := json.MarshalIndent(payload, "", "  ")

	return provider.Prompt{
		System:      systemPrompt,
		User:        string(user),
		Temperature: realizeTemperature,
		MaxTokens:   realizeMaxTokens,
	}
}

// candidate is a parsed rewrite.
type candidate struct {
	ResponseText       string
	FollowUpSuggestion string
}

// parseCandidate reads {responseText, followUpSuggestion?} from the first
// balanced object in raw. responseText must be a non-empty string and
// followUpSuggestion, when present, a string or null.
func parseCandidate(raw string) (candidate, bool) {
	span, ok := provider.ExtractJSONObject(raw)
	if !ok {
		return candidate{}, false
	}
	var parsed struct {
		ResponseText       *string `json:"responseText"`
		FollowUpSuggestion *string `json:"followUpSuggestion"`
	}
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		return candidate{}, false
	}
	if parsed.ResponseText == nil || strings.TrimSpace(*parsed.ResponseText) == "" {
		return candidate{}, false
	}
	c := candidate{ResponseText: strings.TrimSpace(*parsed.ResponseText)}
	if parsed.FollowUpSuggestion != nil {
		c.FollowUpSuggestion = strings.TrimSpace(*parsed.FollowUpSuggestion)
	}
	return c, true
}
