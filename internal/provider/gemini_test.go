package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGemini(t *testing.T) {
	t.Parallel()

	_, err := NewGemini(context.Background(), GeminiConfig{APIKey: "  "})
	require.ErrorIs(t, err, ErrMissingCredential)

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", g.Model())

	g, err = NewGemini(context.Background(), GeminiConfig{APIKey: "test-key", Model: " gemini-2.5-pro "})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", g.Model())
}
