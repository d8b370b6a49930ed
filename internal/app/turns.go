package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/herald/internal/assistant"
	"github.com/rbright/herald/internal/capture"
	"github.com/rbright/herald/internal/logging"
)

func logTurnResult(logger *slog.Logger, result assistant.TurnResult) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"bytes_captured", result.BytesCaptured,
		"audio_ms", result.AudioDuration.Milliseconds(),
		"transcript_length", len(result.Transcript),
		"reply_length", len(result.Reply),
		"transcribe_latency_ms", result.TranscribeLatency.Milliseconds(),
		"dispatch_latency_ms", result.DispatchLatency.Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("turn failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("turn complete", fields...)
}

// debugAudioDumper writes every finished capture to the debug directory.
func debugAudioDumper(logger *slog.Logger) func(capture.Handle, capture.Artifact) {
	return func(handle capture.Handle, artifact capture.Artifact) {
		path, err := writeDebugAudio(handle, artifact)
		if logger == nil {
			return
		}
		if err != nil {
			logger.Warn("debug audio dump failed", "error", err.Error())
			return
		}
		logger.Debug("debug audio written", "path", path, "bytes", len(artifact.Data))
	}
}

func writeDebugAudio(handle capture.Handle, artifact capture.Artifact) (string, error) {
	if len(artifact.Data) == 0 {
		return "", fmt.Errorf("capture %d produced no audio", handle.ID)
	}
	debugDir, err := logging.DebugDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := handle.StartedAt.Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("capture-%s-%d.wav", timestamp, handle.ID))
	if err := os.WriteFile(path, artifact.Data, 0o600); err != nil {
		return "", fmt.Errorf("write debug file %q: %w", path, err)
	}
	return path, nil
}
