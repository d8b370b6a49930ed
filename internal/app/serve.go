package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rbright/herald/internal/assistant"
	"github.com/rbright/herald/internal/audio"
	"github.com/rbright/herald/internal/capture"
	"github.com/rbright/herald/internal/config"
	"github.com/rbright/herald/internal/dispatch"
	"github.com/rbright/herald/internal/indicator"
	"github.com/rbright/herald/internal/ipc"
	"github.com/rbright/herald/internal/output"
	"github.com/rbright/herald/internal/transcribe"
)

const (
	acquireProbeTimeout = 180 * time.Millisecond
	acquireRetries      = 8
)

// daemon owns every long-lived collaborator of a running serve process.
type daemon struct {
	recorder *capture.Recorder
	router   *dispatch.Router
	machine  *assistant.Machine
	handler  *assistant.Handler
	stops    []func()
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, acquireProbeTimeout, acquireRetries, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		if !errors.Is(err, ipc.ErrAlreadyRunning) {
			logger.Error("acquire socket failed", "error", err.Error())
		}
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	d, err := buildDaemon(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon setup failed", "error", err.Error())
		return 1
	}
	defer d.close()

	logger.Info("daemon ready",
		"socket", socketPath,
		"endpoint", cfg.Endpoint,
		"mode", cfg.Chat.Mode,
		"audio_backend", cfg.Audio.Backend,
		"transcription", cfg.Transcription.Provider,
	)

	if err := ipc.Serve(ctx, listener, d.handler); err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		logger.Error("ipc server failed", "error", err.Error())
		return 1
	}

	logger.Info("daemon stopped")
	return 0
}

func buildDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) (*daemon, error) {
	transcriber, err := newTranscriber(cfg.Transcription)
	if err != nil {
		return nil, err
	}

	var hooks capture.Hooks
	if cfg.Debug.EnableAudioDump {
		hooks.OnStop = debugAudioDumper(logger)
	}
	recorder := capture.NewRecorder(newSource(cfg.Audio, logger), capture.DefaultFormat, hooks)

	router := dispatch.NewRouter()
	machine := assistant.New(assistant.Options{
		Recorder:    recorder,
		Transcriber: transcriber,
		Dispatcher:  router,
		Endpoint: dispatch.Endpoint{
			URL:     strings.TrimSpace(cfg.Endpoint),
			Headers: cfg.Dispatch.Headers,
			Timeout: time.Duration(cfg.Dispatch.TimeoutMS) * time.Millisecond,
		},
		Mode:                            assistant.ParseMode(cfg.Chat.Mode),
		SpeakingTimeout:                 time.Duration(cfg.Presence.SpeakingTimeoutMS) * time.Millisecond,
		CompletionTimeout:               time.Duration(cfg.Presence.CompletionTimeoutMS) * time.Millisecond,
		KeepTranscriptOnDispatchFailure: cfg.Chat.KeepTranscriptOnDispatchFailure,
		Logger:                          logger,
	})

	d := &daemon{
		recorder: recorder,
		router:   router,
		machine:  machine,
		handler: assistant.NewHandler(ctx, machine, func(result assistant.TurnResult) {
			logTurnResult(logger, result)
		}),
	}

	if cfg.Indicator.Enable || cfg.Indicator.SoundEnable {
		d.stops = append(d.stops, indicator.New(cfg.Indicator, logger).Attach(ctx, machine))
	}
	if speaker := output.NewSpeaker(cfg.Output, logger); speaker.Enabled() {
		d.stops = append(d.stops, speaker.Attach(ctx, machine))
	}
	return d, nil
}

// close waits for in-flight turns, detaches renderers, then releases the
// device and dispatch connections.
func (d *daemon) close() {
	d.handler.Wait()
	for _, stop := range d.stops {
		stop()
	}
	_ = d.machine.Close()
	_ = d.router.Close()
	_ = d.recorder.Close()
}

func newSource(cfg config.AudioConfig, logger *slog.Logger) capture.Source {
	if cfg.Backend == "silence" {
		return capture.SilenceSource{Realtime: true}
	}
	return audio.PulseSource{Input: cfg.Input, Fallback: cfg.Fallback, Logger: logger}
}

func newTranscriber(cfg config.TranscriptionConfig) (transcribe.Adapter, error) {
	switch cfg.Provider {
	case "static":
		return transcribe.Static{Text: cfg.StaticText}, nil
	case "whisper":
		whisper, err := transcribe.NewWhisper(transcribe.WhisperConfig{
			APIKey:     os.Getenv(cfg.APIKeyEnv),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Language:   cfg.Language,
			Vocabulary: cfg.Vocabulary,
		})
		if err != nil {
			return nil, fmt.Errorf("setup transcription (set %s): %w", cfg.APIKeyEnv, err)
		}
		return whisper, nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider %q", cfg.Provider)
	}
}
