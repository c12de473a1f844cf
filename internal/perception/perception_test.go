package perception

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/provider"
)

type fakeExtractor struct {
	byName map[string]Signal
	fail   map[string]bool
}

func (f *fakeExtractor) Extract(_ context.Context, a Artifact) (Signal, error) {
	if f.fail[a.FileName] {
		return Signal{}, errors.New("boom")
	}
	return f.byName[a.FileName], nil
}

func upload(name, body string) domain.Upload {
	return domain.Upload{FileName: name, MimeType: "image/png", Base64Data: base64.StdEncoding.EncodeToString([]byte(body))}
}

func TestStagePerceiveMergesInOrder(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{
		byName: map[string]Signal{
			"a.png": {Text: "2 + 2 = 4", Confidence: 0.9, Source: "x"},
			"b.png": {Text: "3 x 3 = 9", Confidence: 0.5, Source: "x"},
		},
		fail: map[string]bool{"c.png": true},
	}
	stage := NewStage(ex, 0, nil)

	sig := stage.Perceive(context.Background(), []domain.Upload{upload("a.png", "a"), upload("b.png", "b"), upload("c.png", "c")})
	assert.Equal(t, "2 + 2 = 4\n\n3 x 3 = 9", sig.Text)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
	assert.Equal(t, "x", sig.Source)
}

func TestStagePerceiveFailuresDegradeToEmpty(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{fail: map[string]bool{"a.png": true}}
	stage := NewStage(ex, 0, nil)

	sig := stage.Perceive(context.Background(), []domain.Upload{
		upload("a.png", "a"),
		{FileName: "broken.png", MimeType: "image/png", Base64Data: "***"},
	})
	assert.True(t, sig.Empty())
	assert.Zero(t, sig.Confidence)

	assert.True(t, NewStage(nil, 0, nil).Perceive(context.Background(), []domain.Upload{upload("a.png", "a")}).Empty())
}

func TestChainFallsThrough(t *testing.T) {
	t.Parallel()

	first := &fakeExtractor{fail: map[string]bool{"a.png": true}}
	second := &fakeExtractor{byName: map[string]Signal{"a.png": {Text: "x = 3", Confidence: 0.8}}}

	sig, err := Chain{first, second}.Extract(context.Background(), Artifact{FileName: "a.png"})
	require.NoError(t, err)
	assert.Equal(t, "x = 3", sig.Text)

	_, err = Chain{first}.Extract(context.Background(), Artifact{FileName: "a.png"})
	assert.Error(t, err)
}

func TestModelExtractorParsesJSON(t *testing.T) {
	t.Parallel()

	var gotParts []provider.Part
	gen := provider.GeneratorFunc(func(_ context.Context, p provider.Prompt) (provider.Output, error) {
		gotParts = p.Parts
		return provider.Output{Text: "```json\n{\"text\": \"1/2 + 1/4 = 3/4\", \"confidence\": 1.4}\n```"}, nil
	})

	sig, err := NewModelExtractor(gen).Extract(context.Background(), Artifact{FileName: "a.png", MimeType: "image/png", Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, "1/2 + 1/4 = 3/4", sig.Text)
	assert.Equal(t, 1.0, sig.Confidence)
	assert.Equal(t, modelSource, sig.Source)
	require.Len(t, gotParts, 1)
	assert.Equal(t, "image/png", gotParts[0].MimeType)
}

func TestModelExtractorUnstructuredOutput(t *testing.T) {
	t.Parallel()

	gen := provider.GeneratorFunc(func(context.Context, provider.Prompt) (provider.Output, error) {
		return provider.Output{Text: "  x = 7  "}, nil
	})
	sig, err := NewModelExtractor(gen).Extract(context.Background(), Artifact{Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, "x = 7", sig.Text)
	assert.Equal(t, unstructuredConfidence, sig.Confidence)
}

func TestSignalFromAnnotations(t *testing.T) {
	t.Parallel()

	sig := signalFromAnnotations([]*visionpb.TextAnnotation{
		{Text: "Page one\n", Pages: []*visionpb.Page{{Confidence: 0.8}}},
		nil,
		{Text: "Page two", Pages: []*visionpb.Page{{Confidence: 0.6}}},
	})
	assert.Equal(t, "Page one\nPage two", sig.Text)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-6)
	assert.Equal(t, visionSource, sig.Source)

	assert.True(t, signalFromAnnotations(nil).Empty())
}

func TestVisionClientOptions(t *testing.T) {
	t.Parallel()

	assert.Nil(t, VisionClientOptions(" "))
	assert.Len(t, VisionClientOptions(`{"type":"service_account"}`), 1)
	assert.Len(t, VisionClientOptions("/etc/creds.json"), 1)
}
