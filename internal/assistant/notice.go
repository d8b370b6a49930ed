package assistant

import (
	"errors"

	"github.com/rbright/herald/internal/transcribe"
)

// NoticeKind categorizes a user-visible failure.
type NoticeKind string

const (
	NoticePermissionDenied    NoticeKind = "permission_denied"
	NoticeDeviceUnavailable   NoticeKind = "device_unavailable"
	NoticeTranscriptionFailed NoticeKind = "transcription_failed"
	NoticeDispatchFailed      NoticeKind = "dispatch_failed"
	NoticeDisabled            NoticeKind = "disabled"
)

// Notice is a transient failure description for presentation.
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Title  string     `json:"title"`
	Text   string     `json:"text"`
	Detail string     `json:"detail,omitempty"`
	Err    error      `json:"-"`
}

func newNotice(kind NoticeKind, err error) *Notice {
	n := &Notice{Kind: kind, Err: err}
	if err != nil {
		n.Detail = err.Error()
	}

	switch kind {
	case NoticePermissionDenied:
		n.Title = "Microphone Access Denied"
		n.Text = "Allow microphone access to talk to the assistant."
	case NoticeDeviceUnavailable:
		n.Title = "Microphone Unavailable"
		n.Text = "No usable audio input device was found."
	case NoticeTranscriptionFailed:
		n.Title = "Speech Recognition Failed"
		n.Text = "Could not transcribe audio. Please try again."
		if errors.Is(err, transcribe.ErrEmptyTranscript) {
			n.Text = "No speech detected."
		}
	case NoticeDispatchFailed:
		n.Title = "Connection Error"
		n.Text = "Failed to reach the endpoint. Please check your endpoint configuration."
	case NoticeDisabled:
		n.Title = "Assistant Disabled"
		n.Text = "Voice input is disabled."
	}
	return n
}

// captureNotice maps a recorder start failure to its notice.
func captureNotice(err error) *Notice {
	if errors.Is(err, ErrPermissionDenied) {
		return newNotice(NoticePermissionDenied, err)
	}
	return newNotice(NoticeDeviceUnavailable, err)
}
