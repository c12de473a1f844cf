package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIName = "openai_compatible"

// OpenAIConfig configures an OpenAI-compatible chat completions adapter.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// OpenAICompatible calls POST {base}/chat/completions.
type OpenAICompatible struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatible creates an adapter. The HTTP client carries no timeout of its
// own; deadlines come from the caller's context.
func NewOpenAICompatible(cfg OpenAIConfig) *OpenAICompatible {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		}}
	}
	return &OpenAICompatible{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		httpClient: httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate performs exactly one chat completion call.
func (c *OpenAICompatible) Generate(ctx context.Context, prompt Prompt) (Output, error) {
	if c.apiKey == "" {
		return Output{}, ErrMissingCredential
	}

	body := chatRequest{Model: c.model, MaxTokens: prompt.MaxTokens}
	if prompt.Temperature > 0 {
		t := prompt.Temperature
		body.Temperature = &t
	}
	if prompt.JSON {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}
	if prompt.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: userContent(prompt)})

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Output{}, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return Output{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Output{}, classify(ctx, openAIName, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return Output{}, classify(ctx, openAIName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Output{}, &Error{Provider: openAIName, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Output{}, &Error{Provider: openAIName, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode chat response: %w", err)}
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return Output{}, ErrEmptyOutput
	}
	return Output{Text: decoded.Choices[0].Message.Content}, nil
}

func userContent(prompt Prompt) any {
	if len(prompt.Parts) == 0 {
		return prompt.User
	}
	parts := make([]contentPart, 0, len(prompt.Parts)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt.User})
	for _, p := range prompt.Parts {
		url := "data:" + p.MimeType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
	}
	return parts
}

var _ Generator = (*OpenAICompatible)(nil)
