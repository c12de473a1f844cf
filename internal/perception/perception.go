// Package perception extracts verbatim text from uploaded artifacts.
//
// Perception is mechanical: a Signal carries extracted text and a confidence,
// never narrative. Failures degrade to an empty signal and never abort a turn.
package perception

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/eduvane/internal/domain"
)

// Artifact is a decoded upload.
type Artifact struct {
	FileName string
	MimeType string
	Data     []byte
}

// IsPDF returns true if the artifact is a PDF document.
func (a Artifact) IsPDF() bool {
	return strings.EqualFold(a.MimeType, "application/pdf")
}

// Signal is the extracted content of one or more artifacts.
type Signal struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// Empty returns true if no text was extracted.
func (s Signal) Empty() bool {
	return strings.TrimSpace(s.Text) == ""
}

// Extractor extracts text from a single artifact.
type Extractor interface {
	Extract(ctx context.Context, artifact Artifact) (Signal, error)
}

// Chain tries each extractor in order and returns the first non-empty signal.
type Chain []Extractor

// Extract implements Extractor.
func (c Chain) Extract(ctx context.Context, artifact Artifact) (Signal, error) {
	var errs []error
	for _, ex := range c {
		if ex == nil {
			continue
		}
		sig, err := ex.Extract(ctx, artifact)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !sig.Empty() {
			return sig, nil
		}
	}
	if len(errs) > 0 {
		return Signal{}, errors.Join(errs...)
	}
	return Signal{}, nil
}

const defaultExtractTimeout = 45 * time.Second

// Stage runs extraction over all uploads of a turn.
type Stage struct {
	extractor Extractor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewStage creates a perception stage. A nil extractor yields empty signals.
func NewStage(extractor Extractor, timeout time.Duration, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	return &Stage{extractor: extractor, timeout: timeout, logger: logger}
}

// Perceive extracts text from every upload concurrently and merges the results
// in upload order. Confidence is the mean over artifacts that produced text.
func (s *Stage) Perceive(ctx context.Context, uploads []domain.Upload) Signal {
	if s == nil || s.extractor == nil || len(uploads) == 0 {
		return Signal{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([]Signal, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			data, err := up.Decode()
			if err != nil {
				s.logger.Warn("perception: undecodable upload", "file", up.FileName, "error", err)
				return nil
			}
			sig, err := s.extractor.Extract(gctx, Artifact{FileName: up.FileName, MimeType: up.MimeType, Data: data})
			if err != nil {
				s.logger.Warn("perception: extraction failed", "file", up.FileName, "mime_type", up.MimeType, "error", err)
				return nil
			}
			results[i] = sig
			return nil
		})
	}
	_ = g.Wait()

	return merge(results)
}

func merge(results []Signal) Signal {
	var texts []string
	var sources []string
	var total float64
	for _, r := range results {
		if r.Empty() {
			continue
		}
		texts = append(texts, strings.TrimSpace(r.Text))
		total += clamp01(r.Confidence)
		if r.Source != "" && !contains(sources, r.Source) {
			sources = append(sources, r.Source)
		}
	}
	if len(texts) == 0 {
		return Signal{}
	}
	return Signal{
		Text:       strings.Join(texts, "\n\n"),
		Confidence: total / float64(len(texts)),
		Source:     strings.Join(sources, ","),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
