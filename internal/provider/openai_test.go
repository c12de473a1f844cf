package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatibleGenerate(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"responseText\":\"hi\"}"}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatible(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "m1"})
	out, err := gen.Generate(context.Background(), Prompt{System: "sys", User: "usr", JSON: true, Temperature: 0.8, MaxTokens: 220})
	require.NoError(t, err)

	assert.Equal(t, `{"responseText":"hi"}`, out.Text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "m1", gotBody.Model)
	assert.Equal(t, 220, gotBody.MaxTokens)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "usr", gotBody.Messages[1].Content)
}

func TestOpenAICompatibleNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gen := NewOpenAICompatible(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := gen.Generate(context.Background(), Prompt{User: "x"})

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.False(t, IsTimeout(err))
}

func TestOpenAICompatibleTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gen := NewOpenAICompatible(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gen.Generate(ctx, Prompt{User: "x"})
	assert.True(t, IsTimeout(err), "expected timeout, got %v", err)
}

func TestOpenAICompatibleEmptyOutput(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatible(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := gen.Generate(context.Background(), Prompt{User: "x"})
	assert.True(t, IsEmptyOutput(err))
}

func TestOpenAICompatibleMissingCredential(t *testing.T) {
	t.Parallel()

	gen := NewOpenAICompatible(OpenAIConfig{})
	_, err := gen.Generate(context.Background(), Prompt{User: "x"})
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestOpenAICompatibleImageParts(t *testing.T) {
	t.Parallel()

	content := userContent(Prompt{User: "read", Parts: []Part{{MimeType: "image/png", Data: []byte{1, 2}}}})
	parts, ok := content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "data:image/png;base64,AQI=", parts[1].ImageURL.URL)
}
