// Package provider adapts external text and vision generation APIs to a single
// request/response shape. Adapters never retry; retry budgets belong to callers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTimeout is returned when the caller-supplied deadline elapsed or the call was aborted.
	ErrTimeout = errors.New("provider timeout")
	// ErrEmptyOutput is returned when the provider answered successfully but produced no text.
	ErrEmptyOutput = errors.New("provider returned empty output")
	// ErrMissingCredential is returned when an adapter is used without a credential.
	ErrMissingCredential = errors.New("provider credential missing")
)

// Part is an inline binary input such as an image or PDF page.
type Part struct {
	MimeType string
	Data     []byte
}

// Prompt is the uniform request sent to a Generator.
type Prompt struct {
	System      string
	User        string
	Parts       []Part
	JSON        bool
	Temperature float32
	MaxTokens   int
}

// Output is the uniform response of a Generator.
type Output struct {
	Text string
}

// Generator wraps a single external generation call.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Output, error)
}

// Error is a transport-level failure reported by a provider.
type Error struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return e.Provider + ": request failed"
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsEmptyOutput reports whether err means the provider returned no text.
func IsEmptyOutput(err error) bool {
	return errors.Is(err, ErrEmptyOutput)
}

// classify converts a raw transport error into ErrTimeout or *Error.
func classify(ctx context.Context, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmptyOutput) {
		return err
	}
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, name, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, name, err)
	}
	return &Error{Provider: name, Err: err}
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt Prompt) (Output, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt) (Output, error) {
	return f(ctx, prompt)
}
