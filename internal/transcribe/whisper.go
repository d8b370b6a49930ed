package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rbright/herald/internal/capture"
)

// DefaultWhisperModel is used when no model is configured.
const DefaultWhisperModel = "whisper-1"

// WhisperConfig configures the OpenAI-compatible transcription provider.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string

	// Vocabulary is joined into the prompt to bias recognition toward names
	// the assistant is likely to hear.
	Vocabulary []string
}

// Whisper uploads artifacts to an OpenAI-compatible /audio/transcriptions API.
type Whisper struct {
	client   openai.Client
	model    string
	language string
	prompt   string
}

// NewWhisper builds a provider client. Retries are disabled; a failed upload
// fails the turn.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("whisper: api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultWhisperModel
	}

	return &Whisper{
		client:   openai.NewClient(opts...),
		model:    model,
		language: strings.TrimSpace(cfg.Language),
		prompt:   vocabularyPrompt(cfg.Vocabulary),
	}, nil
}

// Transcribe uploads the artifact and returns the recognized text.
func (w *Whisper) Transcribe(ctx context.Context, artifact capture.Artifact) (string, error) {
	if len(artifact.Data) == 0 {
		return "", ErrEmptyTranscript
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(artifact.Data), fileName(artifact.Encoding), artifact.Encoding),
		Model: openai.AudioModel(w.model),
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}
	if w.prompt != "" {
		params.Prompt = openai.String(w.prompt)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return Normalize(resp.Text)
}

func vocabularyPrompt(words []string) string {
	kept := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		kept = append(kept, word)
	}
	return strings.Join(kept, ", ")
}

func fileName(encoding string) string {
	switch encoding {
	case capture.EncodingWAV, "":
		return "audio.wav"
	default:
		if _, sub, ok := strings.Cut(encoding, "/"); ok && sub != "" {
			return "audio." + sub
		}
		return "audio.bin"
	}
}
