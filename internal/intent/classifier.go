// Package intent classifies a user turn into a structured IntentRecord.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/provider"
)

const defaultClassifyTimeout = 8 * time.Second

const classifySystemPrompt = `You are the Eduvane intent router.
Classify the user's request and return JSON only with exactly these keys:
{"action": "PRACTICE|ANALYZE|HISTORY|CONVERSATIONAL", "subject": "<academic discipline>", "topic": "<core concept>", "difficulty": "Easy|Medium|Hard", "quantity": <integer>}
PRACTICE means the user wants practice questions. ANALYZE means the user wants work evaluated.
HISTORY means the user asks about past progress. CONVERSATIONAL covers greetings and guidance.
Parse number words to integers. Do not add any other keys or prose.`

// Classifier turns free text into an IntentRecord. It never fails.
type Classifier struct {
	gen     provider.Generator
	timeout time.Duration
	logger  *slog.Logger
}

// NewClassifier creates a classifier. A nil generator means heuristics only.
func NewClassifier(gen provider.Generator, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	return &Classifier{gen: gen, timeout: timeout, logger: logger}
}

type classification struct {
	Action     string          `json:"action"`
	Intent     string          `json:"intent"`
	Subject    string          `json:"subject"`
	Topic      string          `json:"topic"`
	Difficulty string          `json:"difficulty"`
	Quantity   json.RawMessage `json:"quantity"`
	Count      json.RawMessage `json:"count"`
}

// Classify interprets text. Uploads always mean the turn is an analysis request.
func (c *Classifier) Classify(ctx context.Context, text string, hasUploads bool) domain.IntentRecord {
	fallback := Heuristic(text, hasUploads)
	if c == nil || c.gen == nil || strings.TrimSpace(text) == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.gen.Generate(ctx, provider.Prompt{
		System:      classifySystemPrompt,
		User:        text,
		JSON:        true,
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		c.logger.Warn("intent: classifier call failed, using heuristics", "error", err)
		return fallback
	}

	rec, err := parseClassification(out.Text)
	if err != nil {
		c.logger.Warn("intent: malformed classifier output, using heuristics", "error", err)
		return fallback
	}
	if hasUploads {
		rec.Action = domain.ActionAnalyze
	}
	if rec.Action == domain.ActionUnknown {
		rec.Action = fallback.Action
	}
	if rec.Topic == "" {
		rec.Topic = fallback.Topic
	}
	if strings.TrimSpace(rec.Subject) == "" || strings.EqualFold(rec.Subject, domain.DefaultSubject) {
		rec.Subject = fallback.Subject
	}
	if rec.Quantity < 1 {
		rec.Quantity = fallback.Quantity
	}
	return rec.WithDefaults()
}

func parseClassification(raw string) (domain.IntentRecord, error) {
	span, ok := provider.ExtractJSONObject(raw)
	if !ok {
		return domain.IntentRecord{}, fmt.Errorf("no JSON object in classifier output")
	}
	var c classification
	if err := json.Unmarshal([]byte(span), &c); err != nil {
		return domain.IntentRecord{}, fmt.Errorf("decode classification: %w", err)
	}
	action := c.Action
	if action == "" {
		action = c.Intent
	}
	if strings.TrimSpace(action) == "" {
		return domain.IntentRecord{}, fmt.Errorf("classification missing action")
	}
	qty := parseQuantity(c.Quantity)
	if qty == 0 {
		qty = parseQuantity(c.Count)
	}
	return domain.IntentRecord{
		Action:     domain.ParseAction(action),
		Subject:    c.Subject,
		Topic:      c.Topic,
		Difficulty: domain.Difficulty(c.Difficulty),
		Quantity:   qty,
	}, nil
}

// parseQuantity accepts a JSON number or a numeric string.
func parseQuantity(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return extractQuantity(strings.ToLower(s))
	}
	return 0
}
