package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiName = "gemini"

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini generates content through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini adapter.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// Generate performs exactly one GenerateContent call.
func (g *Gemini) Generate(ctx context.Context, prompt Prompt) (Output, error) {
	parts := make([]*genai.Part, 0, len(prompt.Parts)+1)
	for _, p := range prompt.Parts {
		parts = append(parts, genai.NewPartFromBytes(p.Data, p.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(prompt.User))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if prompt.Temperature > 0 {
		config.Temperature = genai.Ptr(prompt.Temperature)
	}
	if prompt.MaxTokens > 0 {
		config.MaxOutputTokens = int32(prompt.MaxTokens)
	}
	if prompt.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && ctx.Err() == nil {
			return Output{}, &Error{Provider: geminiName, StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
		}
		return Output{}, classify(ctx, geminiName, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Output{}, ErrEmptyOutput
	}
	return Output{Text: text}, nil
}

var _ Generator = (*Gemini)(nil)
