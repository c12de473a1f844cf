package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/eduvane/internal/provider"
)

const modelSource = "model_ocr"

// unstructuredConfidence is assigned when the model ignored the JSON contract.
const unstructuredConfidence = 0.3

const modelExtractPrompt = `Extract all visible text from the attached document exactly as written, including math notation.
Do not correct, summarize, grade or explain anything.
Return JSON only: {"text": "<verbatim text>", "confidence": <number between 0 and 1>}.`

// ModelExtractor uses a vision-capable generator as an OCR engine.
type ModelExtractor struct {
	gen provider.Generator
}

// NewModelExtractor creates a model-backed extractor.
func NewModelExtractor(gen provider.Generator) *ModelExtractor {
	return &ModelExtractor{gen: gen}
}

// Extract implements Extractor.
func (m *ModelExtractor) Extract(ctx context.Context, artifact Artifact) (Signal, error) {
	if len(artifact.Data) == 0 {
		return Signal{}, nil
	}
	out, err := m.gen.Generate(ctx, provider.Prompt{
		User:        modelExtractPrompt,
		Parts:       []provider.Part{{MimeType: artifact.MimeType, Data: artifact.Data}},
		JSON:        true,
		Temperature: 0.1,
	})
	if err != nil {
		return Signal{}, fmt.Errorf("model extract: %w", err)
	}

	if span, ok := provider.ExtractJSONObject(out.Text); ok {
		var parsed struct {
			Text       string   `json:"text"`
			Confidence *float64 `json:"confidence"`
		}
		if err := json.Unmarshal([]byte(span), &parsed); err == nil {
			conf := unstructuredConfidence
			if parsed.Confidence != nil {
				conf = clamp01(*parsed.Confidence)
			}
			if strings.TrimSpace(parsed.Text) == "" {
				return Signal{}, nil
			}
			return Signal{Text: strings.TrimSpace(parsed.Text), Confidence: conf, Source: modelSource}, nil
		}
	}
	return Signal{Text: strings.TrimSpace(out.Text), Confidence: unstructuredConfidence, Source: modelSource}, nil
}

var _ Extractor = (*ModelExtractor)(nil)
