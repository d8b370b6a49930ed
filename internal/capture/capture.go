// Package capture owns the microphone session lifecycle and turns one recording
// into a finalized audio artifact.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAlreadyCapturing is returned when Start is called while a session is open.
	ErrAlreadyCapturing = errors.New("already capturing audio")
	// ErrPermissionDenied is returned when the platform refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable is returned when no usable input device can be opened.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrRecorderClosed is returned by Start after Close.
	ErrRecorderClosed = errors.New("recorder closed")
)

// EncodingWAV is the encoding tag for artifacts produced by Recorder.
const EncodingWAV = "audio/wav"

const drainTimeout = 2 * time.Second

// Format describes the raw PCM layout delivered by a Source (signed 16-bit little endian).
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16kHz mono, the rate speech providers expect.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond returns the PCM byte rate for f.
func (f Format) BytesPerSecond() int {
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	return f.SampleRate * channels * 2
}

// Stream is one acquired device stream. Close releases the device and must
// eventually close the Chunks channel.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
}

// Source acquires device streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(context.Context) (Stream, error)

func (f SourceFunc) Open(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// Artifact is the finalized recording handed to transcription.
type Artifact struct {
	Data       []byte
	Encoding   string
	SampleRate int
	Channels   int
	PCMBytes   int64
	Duration   time.Duration
}

// Handle identifies one open capture session.
type Handle struct {
	ID        uint64
	StartedAt time.Time
}

// Hooks are optional lifecycle signals.
type Hooks struct {
	OnStart func(Handle)
	OnStop  func(Handle, Artifact)
}

// session accumulates chunks from one open stream.
type session struct {
	handle Handle
	stream Stream

	mu     sync.Mutex
	chunks [][]byte
	bytes  int64

	done chan struct{}
}

func (s *session) collect() {
	defer close(s.done)
	for chunk := range s.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		buf := make([]byte, len(chunk))
		copy(buf, chunk)

		s.mu.Lock()
		s.chunks = append(s.chunks, buf)
		s.bytes += int64(len(buf))
		s.mu.Unlock()
	}
}

// pcm concatenates accumulated chunks in arrival order.
func (s *session) pcm() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, 0, s.bytes)
	for _, chunk := range s.chunks {
		out = append(out, chunk...)
	}
	return out
}

// release closes the stream and waits for the collector to observe the end of data.
func (s *session) release() error {
	err := s.stream.Close()
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
	}
	return err
}

// Recorder allows at most one open capture session at a time.
type Recorder struct {
	source Source
	format Format
	hooks  Hooks

	mu      sync.Mutex
	current *session
	opening bool
	closed  bool
	seq     uint64
}

// NewRecorder constructs a recorder over source.
func NewRecorder(source Source, format Format, hooks Hooks) *Recorder {
	if format.SampleRate <= 0 {
		format.SampleRate = DefaultFormat.SampleRate
	}
	if format.Channels <= 0 {
		format.Channels = DefaultFormat.Channels
	}
	return &Recorder{source: source, format: format, hooks: hooks}
}

// Capturing reports whether a session is currently open.
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Start acquires the device and begins accumulating audio.
func (r *Recorder) Start(ctx context.Context) (Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Handle{}, ErrRecorderClosed
	}
	if r.current != nil || r.opening {
		r.mu.Unlock()
		return Handle{}, ErrAlreadyCapturing
	}
	if r.source == nil {
		r.mu.Unlock()
		return Handle{}, fmt.Errorf("%w: no capture source configured", ErrDeviceUnavailable)
	}
	r.opening = true
	r.mu.Unlock()

	stream, err := r.source.Open(ctx)

	r.mu.Lock()
	r.opening = false
	if err != nil {
		r.mu.Unlock()
		return Handle{}, classifyOpenError(err)
	}
	if r.closed {
		r.mu.Unlock()
		_ = stream.Close()
		return Handle{}, ErrRecorderClosed
	}
	r.seq++
	s := &session{
		handle: Handle{ID: r.seq, StartedAt: time.Now()},
		stream: stream,
		done:   make(chan struct{}),
	}
	r.current = s
	r.mu.Unlock()

	go s.collect()

	if r.hooks.OnStart != nil {
		r.hooks.OnStart(s.handle)
	}
	return s.handle, nil
}

// Stop releases the device and returns the finalized artifact. It reports
// false, with no signal, when no session is open.
func (r *Recorder) Stop() (Artifact, bool) {
	s := r.detach()
	if s == nil {
		return Artifact{}, false
	}
	_ = s.release()

	artifact := r.assemble(s.pcm())
	if r.hooks.OnStop != nil {
		r.hooks.OnStop(s.handle, artifact)
	}
	return artifact, true
}

// Cancel releases the device and discards the open session, if any.
func (r *Recorder) Cancel() bool {
	s := r.detach()
	if s == nil {
		return false
	}
	_ = s.release()
	return true
}

// Close cancels any open session and rejects future starts.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.Cancel()
	return nil
}

func (r *Recorder) detach() *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.current
	r.current = nil
	return s
}

func (r *Recorder) assemble(pcm []byte) Artifact {
	var duration time.Duration
	if rate := r.format.BytesPerSecond(); rate > 0 {
		duration = time.Duration(len(pcm)) * time.Second / time.Duration(rate)
	}
	return Artifact{
		Data:       EncodeWAV(pcm, r.format.SampleRate, r.format.Channels),
		Encoding:   EncodingWAV,
		SampleRate: r.format.SampleRate,
		Channels:   r.format.Channels,
		PCMBytes:   int64(len(pcm)),
		Duration:   duration,
	}
}

// classifyOpenError maps source failures onto the capture error taxonomy.
func classifyOpenError(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}
