package assistant

import (
	"errors"

	"github.com/rbright/herald/internal/capture"
)

var (
	ErrAlreadyCapturing  = capture.ErrAlreadyCapturing
	ErrPermissionDenied  = capture.ErrPermissionDenied
	ErrDeviceUnavailable = capture.ErrDeviceUnavailable

	// ErrTranscriptionFailed wraps any transcription adapter failure.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrDispatchFailed wraps any dispatch client failure.
	ErrDispatchFailed = errors.New("dispatch failed")
	// ErrDisabled is returned by StartCapture while input is disabled.
	ErrDisabled = errors.New("voice input is disabled")
	// ErrNotListening is returned by StopCapture and CancelCapture outside Listening.
	ErrNotListening = errors.New("not listening")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("assistant closed")
)
