// Package transcribe converts a finalized capture artifact into text.
package transcribe

import (
	"context"
	"errors"
	"strings"

	"github.com/rbright/herald/internal/capture"
)

// ErrEmptyTranscript indicates the provider answered but recognized no speech.
var ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")

// Adapter turns one artifact into a transcript. Implementations make a single
// attempt and never retry.
type Adapter interface {
	Transcribe(ctx context.Context, artifact capture.Artifact) (string, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(context.Context, capture.Artifact) (string, error)

func (f AdapterFunc) Transcribe(ctx context.Context, artifact capture.Artifact) (string, error) {
	return f(ctx, artifact)
}

// Static returns a canned transcript or error.
type Static struct {
	Text string
	Err  error
}

func (s Static) Transcribe(context.Context, capture.Artifact) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

// Normalize trims provider output and maps blank results to ErrEmptyTranscript.
func Normalize(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
