// Package assistant sequences one voice turn at a time: capture, transcription,
// dispatch, and the reply presentation window.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/herald/internal/capture"
	"github.com/rbright/herald/internal/dispatch"
	"github.com/rbright/herald/internal/presence"
	"github.com/rbright/herald/internal/transcribe"
)

const (
	// DefaultSpeakingTimeout ends Speaking when no completion signal arrives.
	DefaultSpeakingTimeout = 3 * time.Second
	// DefaultCompletionTimeout bounds a held Speaking phase whose renderer
	// never reports completion.
	DefaultCompletionTimeout = 2 * time.Minute
)

// Recorder is the capture-session subset the machine drives.
type Recorder interface {
	Start(context.Context) (capture.Handle, error)
	Stop() (capture.Artifact, bool)
	Cancel() bool
}

// Options wires collaborators into a Machine.
type Options struct {
	Recorder    Recorder
	Transcriber transcribe.Adapter
	Dispatcher  dispatch.Client
	Endpoint    dispatch.Endpoint
	Mode        Mode

	// SpeakingTimeout bounds Speaking when FinishSpeaking is never called.
	SpeakingTimeout time.Duration
	// CompletionTimeout replaces SpeakingTimeout once a renderer holds the
	// phase with HoldSpeaking.
	CompletionTimeout time.Duration
	// KeepTranscriptOnDispatchFailure appends the user message even when the
	// endpoint fails. Chat mode only.
	KeepTranscriptOnDispatchFailure bool

	Logger *slog.Logger
}

type subscriber struct {
	id int
	fn func(Update)
}

// Machine is the single owner of presence state and the message log.
type Machine struct {
	recorder    Recorder
	transcriber transcribe.Adapter
	dispatcher  dispatch.Client
	mode        Mode
	keepOnFail  bool
	speakFor    time.Duration
	holdFor     time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	state     presence.State
	disabled  bool
	starting  bool
	releasing bool
	closed    bool
	endpoint  dispatch.Endpoint
	messages  []Message
	handle    capture.Handle

	speakTurn  uint64
	speakTimer *time.Timer

	seq        uint64
	subs       []subscriber
	nextSub    int
	queue      []Update
	delivering bool
}

// New constructs an idle machine. Missing collaborators fail their phase of
// the turn instead of panicking.
func New(opts Options) *Machine {
	speakFor := opts.SpeakingTimeout
	if speakFor <= 0 {
		speakFor = DefaultSpeakingTimeout
	}
	holdFor := opts.CompletionTimeout
	if holdFor <= 0 {
		holdFor = DefaultCompletionTimeout
	}
	transcriber := opts.Transcriber
	if transcriber == nil {
		transcriber = transcribe.Static{Err: errors.New("no transcription provider configured")}
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.Static{Err: errors.New("no dispatch client configured")}
	}
	mode := opts.Mode
	if mode != ModeOrb {
		mode = ModeChat
	}

	return &Machine{
		recorder:    opts.Recorder,
		transcriber: transcriber,
		dispatcher:  dispatcher,
		mode:        mode,
		keepOnFail:  opts.KeepTranscriptOnDispatchFailure,
		speakFor:    speakFor,
		holdFor:     holdFor,
		logger:      opts.Logger,
		state:       presence.StateIdle,
		endpoint:    opts.Endpoint,
	}
}

// State returns the current presence state.
func (m *Machine) State() presence.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Messages returns a copy of the log in display order.
func (m *Machine) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Snapshot returns the full presentation projection.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn for every subsequent Update. Updates arrive in
// mutation order, never concurrently, and fn may call back into the machine.
func (m *Machine) Subscribe(fn func(Update)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.subs {
				if sub.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// StartCapture moves Idle to Listening by opening a capture session.
func (m *Machine) StartCapture(ctx context.Context) (capture.Handle, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return capture.Handle{}, ErrClosed
	case m.state != presence.StateIdle || m.starting:
		m.mu.Unlock()
		return capture.Handle{}, ErrAlreadyCapturing
	case m.disabled:
		m.publishLocked("", newNotice(NoticeDisabled, ErrDisabled))
		m.mu.Unlock()
		m.deliver()
		return capture.Handle{}, ErrDisabled
	case m.recorder == nil:
		err := fmt.Errorf("%w: no recorder configured", ErrDeviceUnavailable)
		m.publishLocked("", captureNotice(err))
		m.mu.Unlock()
		m.deliver()
		return capture.Handle{}, err
	}
	m.starting = true
	m.mu.Unlock()

	handle, err := m.recorder.Start(ctx)

	m.mu.Lock()
	m.starting = false
	if err != nil {
		if errors.Is(err, ErrAlreadyCapturing) {
			m.mu.Unlock()
			return capture.Handle{}, err
		}
		m.publishLocked("", captureNotice(err))
		m.mu.Unlock()
		m.deliver()
		m.logWarn("capture start failed", "error", err.Error())
		return capture.Handle{}, err
	}
	if m.closed {
		m.mu.Unlock()
		m.recorder.Cancel()
		return capture.Handle{}, ErrClosed
	}
	m.handle = handle
	m.transitionLocked(presence.EventStart)
	m.publishLocked("", nil)
	m.mu.Unlock()
	m.deliver()
	return handle, nil
}

// StopCapture ends Listening and runs the turn to completion: release the
// device, transcribe, dispatch, then Speaking or back to Idle on failure.
func (m *Machine) StopCapture(ctx context.Context) TurnResult {
	m.mu.Lock()
	if m.state != presence.StateListening || m.releasing {
		result := TurnResult{State: m.state, Err: ErrNotListening, FinishedAt: time.Now()}
		m.mu.Unlock()
		return result
	}
	result := TurnResult{StartedAt: m.handle.StartedAt}
	m.transitionLocked(presence.EventStop)
	m.publishLocked("", nil)
	m.mu.Unlock()
	m.deliver()

	artifact, ok := m.recorder.Stop()
	result.BytesCaptured = artifact.PCMBytes
	result.AudioDuration = artifact.Duration
	if !ok {
		return m.failTurn(result, NoticeDeviceUnavailable, fmt.Errorf("%w: capture session ended unexpectedly", ErrDeviceUnavailable), "")
	}

	transcribeStart := time.Now()
	text, err := m.transcriber.Transcribe(ctx, artifact)
	if err == nil {
		text, err = transcribe.Normalize(text)
	}
	result.TranscribeLatency = time.Since(transcribeStart)
	if err != nil {
		return m.failTurn(result, NoticeTranscriptionFailed, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err), "")
	}
	result.Transcript = text

	m.mu.Lock()
	endpoint := m.endpoint
	m.mu.Unlock()

	dispatchStart := time.Now()
	reply, err := m.dispatcher.Send(ctx, text, endpoint)
	result.DispatchLatency = time.Since(dispatchStart)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = dispatch.ErrEmptyReply
	}
	if err != nil {
		keep := ""
		if m.keepOnFail {
			keep = text
		}
		return m.failTurn(result, NoticeDispatchFailed, fmt.Errorf("%w: %w", ErrDispatchFailed, err), keep)
	}
	reply = strings.TrimSpace(reply)
	result.Reply = reply

	m.mu.Lock()
	if m.closed {
		// Nothing is left to present the reply.
		m.transitionLocked(presence.EventFail)
		result.State = m.state
		m.mu.Unlock()
		result.Err = ErrClosed
		result.FinishedAt = time.Now()
		return result
	}
	if m.mode == ModeChat {
		m.appendLocked(OriginUser, text)
		m.appendLocked(OriginAssistant, reply)
	}
	m.transitionLocked(presence.EventReply)
	m.armSpeakingLocked()
	m.publishLocked(reply, nil)
	result.State = m.state
	m.mu.Unlock()
	m.deliver()

	result.FinishedAt = time.Now()
	return result
}

// CancelCapture discards an open capture session and returns to Idle.
func (m *Machine) CancelCapture() error {
	m.mu.Lock()
	if m.state != presence.StateListening || m.releasing {
		m.mu.Unlock()
		return ErrNotListening
	}
	m.releasing = true
	m.mu.Unlock()

	m.recorder.Cancel()

	m.mu.Lock()
	m.releasing = false
	m.transitionLocked(presence.EventCancel)
	m.publishLocked("", nil)
	m.mu.Unlock()
	m.deliver()
	return nil
}

// FinishSpeaking is the presentation completion signal. It reports whether a
// Speaking phase was ended.
func (m *Machine) FinishSpeaking() bool {
	m.mu.Lock()
	return m.endSpeaking(m.speakTurn)
}

// HoldSpeaking tells the machine a renderer is presenting the current reply
// and will call FinishSpeaking when it is done. The fallback timer is replaced
// by the longer completion watchdog. It reports whether a phase was held.
func (m *Machine) HoldSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != presence.StateSpeaking {
		return false
	}
	m.armTimerLocked(m.speakTurn, m.holdFor)
	return true
}

// SetDisabled gates new capture starts. In-flight turns are unaffected.
func (m *Machine) SetDisabled(disabled bool) {
	m.mu.Lock()
	if m.disabled == disabled {
		m.mu.Unlock()
		return
	}
	m.disabled = disabled
	m.publishLocked("", nil)
	m.mu.Unlock()
	m.deliver()
}

// SetEndpoint replaces the dispatch URL for subsequent turns.
func (m *Machine) SetEndpoint(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return dispatch.ErrEmptyEndpoint
	}
	m.mu.Lock()
	if m.endpoint.URL == url {
		m.mu.Unlock()
		return nil
	}
	m.endpoint.URL = url
	m.publishLocked("", nil)
	m.mu.Unlock()
	m.deliver()
	return nil
}

// Close cancels any open capture, stops the speaking timer, and rejects new
// starts. Subscribers stop receiving updates.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.speakTimer != nil {
		m.speakTimer.Stop()
		m.speakTimer = nil
	}
	m.subs = nil
	m.queue = nil
	listening := m.state == presence.StateListening
	if listening {
		m.transitionLocked(presence.EventCancel)
	}
	m.mu.Unlock()

	if listening && m.recorder != nil {
		m.recorder.Cancel()
	}
	return nil
}

// failTurn returns a Thinking turn to Idle and publishes the notice. keep, when
// non-empty, is appended as the user message.
func (m *Machine) failTurn(result TurnResult, kind NoticeKind, err error, keep string) TurnResult {
	notice := newNotice(kind, err)

	m.mu.Lock()
	if keep != "" && m.mode == ModeChat {
		m.appendLocked(OriginUser, keep)
	}
	m.transitionLocked(presence.EventFail)
	m.publishLocked("", notice)
	result.State = m.state
	m.mu.Unlock()
	m.deliver()

	m.logWarn("turn failed", "kind", string(kind), "error", err.Error())
	result.Err = err
	result.FinishedAt = time.Now()
	return result
}

// armSpeakingLocked starts the fallback timer for a new Speaking phase.
func (m *Machine) armSpeakingLocked() {
	m.speakTurn++
	m.armTimerLocked(m.speakTurn, m.speakFor)
}

func (m *Machine) armTimerLocked(turn uint64, after time.Duration) {
	if m.speakTimer != nil {
		m.speakTimer.Stop()
		m.speakTimer = nil
	}
	if m.closed {
		return
	}
	m.speakTimer = time.AfterFunc(after, func() {
		m.mu.Lock()
		m.endSpeaking(turn)
	})
}

// endSpeaking must be called with mu held; it releases mu.
func (m *Machine) endSpeaking(turn uint64) bool {
	if m.state != presence.StateSpeaking || turn != m.speakTurn {
		m.mu.Unlock()
		return false
	}
	if m.speakTimer != nil {
		m.speakTimer.Stop()
		m.speakTimer = nil
	}
	m.transitionLocked(presence.EventFinished)
	m.publishLocked("", nil)
	m.mu.Unlock()
	m.deliver()
	return true
}

func (m *Machine) transitionLocked(event presence.Event) {
	next, err := presence.Transition(m.state, event)
	if err != nil {
		// Callers check the source state first; an error here is a sequencing bug.
		m.logError("presence transition rejected", "error", err.Error())
		return
	}
	m.state = next
}

func (m *Machine) appendLocked(origin Origin, text string) {
	m.messages = append(m.messages, Message{
		ID:        uuid.NewString(),
		Text:      text,
		Origin:    origin,
		CreatedAt: time.Now(),
	})
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Seq:       m.seq,
		State:     m.state,
		Disabled:  m.disabled,
		Accepting: m.state == presence.StateIdle && !m.disabled && !m.closed,
		Endpoint:  m.endpoint.URL,
		Mode:      m.mode,
		Messages:  append([]Message(nil), m.messages...),
	}
}

// publishLocked queues an Update reflecting the current state.
func (m *Machine) publishLocked(reply string, notice *Notice) {
	if m.closed {
		return
	}
	m.seq++
	m.queue = append(m.queue, Update{
		Seq:      m.seq,
		Snapshot: m.snapshotLocked(),
		Reply:    reply,
		Notice:   notice,
	})
}

// deliver drains the update queue. Only one caller drains at a time; a
// mutation made by a subscriber is delivered by the draining caller after the
// current update.
func (m *Machine) deliver() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.queue) > 0 {
		update := m.queue[0]
		m.queue = m.queue[1:]
		subs := append([]subscriber(nil), m.subs...)
		m.mu.Unlock()

		for _, sub := range subs {
			sub.fn(update)
		}

		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}

func (m *Machine) logWarn(msg string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Warn(msg, args...)
}

func (m *Machine) logError(msg string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Error(msg, args...)
}
