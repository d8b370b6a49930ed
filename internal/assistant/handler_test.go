package assistant

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/herald/internal/dispatch"
	"github.com/rbright/herald/internal/ipc"
	"github.com/rbright/herald/internal/presence"
	"github.com/rbright/herald/internal/transcribe"
)

func newTestHandler(t *testing.T, opts Options) (*Handler, *Machine, chan TurnResult) {
	t.Helper()
	if opts.Recorder == nil {
		opts.Recorder = &fakeRecorder{}
	}
	if opts.Endpoint.URL == "" {
		opts.Endpoint = dispatch.Endpoint{URL: "https://example.invalid/hook"}
	}
	m := New(opts)
	t.Cleanup(func() { _ = m.Close() })

	turns := make(chan TurnResult, 4)
	h := NewHandler(context.Background(), m, func(r TurnResult) { turns <- r })
	return h, m, turns
}

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	h, _, _ := newTestHandler(t, Options{})

	status := h.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(presence.StateIdle), status.State)
	require.Equal(t, "Ready", status.Label)
	require.True(t, status.Accepting)
	require.Equal(t, "https://example.invalid/hook", status.Endpoint)
	require.Equal(t, "chat", status.Mode)

	unknown := h.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestHandleStateGuards(t *testing.T) {
	h, _, _ := newTestHandler(t, Options{})

	stop := h.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, stop.OK)
	require.Contains(t, stop.Error, "cannot stop from state idle")

	cancel := h.Handle(context.Background(), ipc.Request{Command: "cancel"})
	require.False(t, cancel.OK)
	require.Contains(t, cancel.Error, "cannot cancel from state idle")

	done := h.Handle(context.Background(), ipc.Request{Command: "done"})
	require.False(t, done.OK)
	require.Contains(t, done.Error, "not speaking")

	start := h.Handle(context.Background(), ipc.Request{Command: "start"})
	require.True(t, start.OK)
	require.Equal(t, "listening", start.State)

	again := h.Handle(context.Background(), ipc.Request{Command: "start"})
	require.False(t, again.OK)
	require.Contains(t, again.Error, "cannot start from state listening")
}

func TestHandleToggleRunsFullTurn(t *testing.T) {
	h, m, turns := newTestHandler(t, Options{
		Transcriber:     transcribe.Static{Text: "turn on the lights"},
		Dispatcher:      dispatch.Static{Reply: "Done."},
		SpeakingTimeout: time.Hour,
	})

	first := h.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, first.OK)
	require.Equal(t, "listening", first.Message)

	second := h.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, second.OK)
	require.Equal(t, "stop requested", second.Message)

	result := <-turns
	require.NoError(t, result.Err)
	require.Equal(t, "Done.", result.Reply)
	h.Wait()
	require.Equal(t, presence.StateSpeaking, m.State())

	done := h.Handle(context.Background(), ipc.Request{Command: "done"})
	require.True(t, done.OK)
	require.Equal(t, "idle", done.State)

	messages := h.Handle(context.Background(), ipc.Request{Command: "messages"})
	require.True(t, messages.OK)
	require.Len(t, messages.Messages, 2)
	require.Equal(t, "user", messages.Messages[0].Origin)
	require.Equal(t, "turn on the lights", messages.Messages[0].Text)
	require.Equal(t, "assistant", messages.Messages[1].Origin)
	require.Equal(t, "Done.", messages.Messages[1].Text)
}

func TestHandleToggleWhileSpeakingInterruptsAndListens(t *testing.T) {
	h, m, turns := newTestHandler(t, Options{
		Transcriber:     transcribe.Static{Text: "hello"},
		Dispatcher:      dispatch.Static{Reply: "hi"},
		SpeakingTimeout: time.Hour,
	})

	h.Handle(context.Background(), ipc.Request{Command: "start"})
	h.Handle(context.Background(), ipc.Request{Command: "stop"})
	<-turns
	h.Wait()
	require.Equal(t, presence.StateSpeaking, m.State())

	resp := h.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)
	require.Equal(t, presence.StateListening, m.State())
}

func TestHandleCancelEnableDisableEndpoint(t *testing.T) {
	h, m, _ := newTestHandler(t, Options{})

	require.True(t, h.Handle(context.Background(), ipc.Request{Command: "start"}).OK)
	cancel := h.Handle(context.Background(), ipc.Request{Command: "cancel"})
	require.True(t, cancel.OK)
	require.Equal(t, "idle", cancel.State)

	disable := h.Handle(context.Background(), ipc.Request{Command: "disable"})
	require.True(t, disable.OK)
	require.True(t, disable.Disabled)
	require.False(t, disable.Accepting)

	rejected := h.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.False(t, rejected.OK)
	require.Contains(t, rejected.Error, "disabled")

	enable := h.Handle(context.Background(), ipc.Request{Command: "enable"})
	require.True(t, enable.OK)
	require.True(t, enable.Accepting)

	current := h.Handle(context.Background(), ipc.Request{Command: "endpoint"})
	require.True(t, current.OK)
	require.Equal(t, "https://example.invalid/hook", current.Endpoint)

	updated := h.Handle(context.Background(), ipc.Request{Command: "endpoint", Arg: "http://localhost:5678/webhook"})
	require.True(t, updated.OK)
	require.Equal(t, "http://localhost:5678/webhook", updated.Endpoint)
	require.Equal(t, "http://localhost:5678/webhook", m.Snapshot().Endpoint)
}

func TestWatchStreamsSnapshotThenUpdates(t *testing.T) {
	h, m, turns := newTestHandler(t, Options{
		Transcriber:     transcribe.Static{Text: "turn on the lights"},
		Dispatcher:      dispatch.Static{Reply: "Done."},
		SpeakingTimeout: time.Hour,
	})

	socketPath := filepath.Join(t.TempDir(), "herald.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = ipc.Serve(ctx, listener, h)
	}()

	var mu sync.Mutex
	var received []ipc.Response
	first := make(chan struct{})
	speaking := make(chan struct{})
	go func() {
		_ = ipc.Watch(ctx, socketPath, ipc.Request{Command: "watch"}, time.Second, func(resp ipc.Response) error {
			mu.Lock()
			received = append(received, resp)
			n := len(received)
			mu.Unlock()
			if n == 1 {
				close(first)
			}
			if resp.State == string(presence.StateSpeaking) {
				close(speaking)
			}
			return nil
		})
	}()
	<-first

	_, err = m.StartCapture(context.Background())
	require.NoError(t, err)
	h.Handle(context.Background(), ipc.Request{Command: "stop"})
	<-turns

	select {
	case <-speaking:
	case <-time.After(2 * time.Second):
		t.Fatal("watch never observed speaking")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "watch", received[0].Message)
	require.Equal(t, "idle", received[0].State)

	var states []string
	for _, resp := range received[1:] {
		states = append(states, resp.State)
	}
	require.Equal(t, []string{"listening", "thinking", "speaking"}, states)

	last := received[len(received)-1]
	require.Equal(t, "Done.", last.Reply)
	require.Len(t, last.Messages, 2)
	for i := 1; i < len(received); i++ {
		require.Greater(t, received[i].Seq, received[i-1].Seq)
	}
}

func TestWatchForwardsNotices(t *testing.T) {
	h, m, _ := newTestHandler(t, Options{})
	m.SetDisabled(true)

	updates := make(chan ipc.Response, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- h.Stream(ctx, ipc.Request{Command: "watch"}, func(resp ipc.Response) error {
			updates <- resp
			return nil
		})
	}()

	initial := <-updates
	require.True(t, initial.Disabled)

	_, err := m.StartCapture(context.Background())
	require.ErrorIs(t, err, ErrDisabled)

	notice := <-updates
	require.NotNil(t, notice.Notice)
	require.Equal(t, string(NoticeDisabled), notice.Notice.Kind)
	require.Equal(t, "Assistant Disabled", notice.Notice.Title)

	cancel()
	require.NoError(t, <-streamDone)
}
