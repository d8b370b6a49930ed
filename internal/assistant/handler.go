package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rbright/herald/internal/ipc"
	"github.com/rbright/herald/internal/presence"
)

const watchBuffer = 64

// Handler serves IPC commands against one Machine.
type Handler struct {
	machine *Machine
	turnCtx context.Context
	onTurn  func(TurnResult)

	turns sync.WaitGroup
}

var _ ipc.Streamer = (*Handler)(nil)

// NewHandler binds m to the IPC protocol. Turns started by "stop" run under
// turnCtx and report through onTurn.
func NewHandler(turnCtx context.Context, m *Machine, onTurn func(TurnResult)) *Handler {
	if turnCtx == nil {
		turnCtx = context.Background()
	}
	return &Handler{machine: m, turnCtx: turnCtx, onTurn: onTurn}
}

// Wait blocks until every turn launched by "stop" or "toggle" has finished.
func (h *Handler) Wait() {
	h.turns.Wait()
}

// Handle answers one command.
func (h *Handler) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return snapshotResponse(h.machine.Snapshot(), false, "status")
	case "messages":
		return snapshotResponse(h.machine.Snapshot(), true, "messages")
	case "toggle":
		return h.toggle(ctx)
	case "start":
		return h.start(ctx)
	case "stop":
		return h.stop()
	case "cancel":
		if err := h.machine.CancelCapture(); err != nil {
			return h.errorResponse(fmt.Errorf("cannot cancel from state %s", h.machine.State()))
		}
		return h.okResponse("capture cancelled")
	case "done":
		if !h.machine.FinishSpeaking() {
			return h.errorResponse(fmt.Errorf("not speaking (state %s)", h.machine.State()))
		}
		return h.okResponse("speaking finished")
	case "enable":
		h.machine.SetDisabled(false)
		return h.okResponse("voice input enabled")
	case "disable":
		h.machine.SetDisabled(true)
		return h.okResponse("voice input disabled")
	case "endpoint":
		if req.Arg == "" {
			return snapshotResponse(h.machine.Snapshot(), false, "endpoint")
		}
		if err := h.machine.SetEndpoint(req.Arg); err != nil {
			return h.errorResponse(err)
		}
		return h.okResponse("endpoint updated")
	default:
		return h.errorResponse(fmt.Errorf("unknown command: %s", req.Command))
	}
}

// Streams reports whether req keeps the connection open.
func (h *Handler) Streams(req ipc.Request) bool {
	return req.Command == "watch"
}

// Stream sends the current snapshot followed by every later update.
func (h *Handler) Stream(ctx context.Context, _ ipc.Request, send func(ipc.Response) error) error {
	updates := make(chan Update, watchBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe := h.machine.Subscribe(func(u Update) {
		select {
		case updates <- u:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	initial := h.machine.Snapshot()
	if err := send(snapshotResponse(initial, true, "watch")); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-overflow:
			resp := snapshotResponse(h.machine.Snapshot(), false, "")
			resp.OK = false
			resp.Error = "watcher fell behind; reconnect"
			_ = send(resp)
			return errors.New("watch subscriber overflow")
		case u := <-updates:
			if u.Seq <= initial.Seq {
				continue
			}
			if err := send(updateResponse(u)); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) toggle(ctx context.Context) ipc.Response {
	switch h.machine.State() {
	case presence.StateListening:
		return h.stop()
	case presence.StateSpeaking:
		// Interrupt the reply and listen again.
		h.machine.FinishSpeaking()
		return h.start(ctx)
	default:
		return h.start(ctx)
	}
}

func (h *Handler) start(ctx context.Context) ipc.Response {
	if _, err := h.machine.StartCapture(ctx); err != nil {
		if errors.Is(err, ErrAlreadyCapturing) {
			return h.errorResponse(fmt.Errorf("cannot start from state %s", h.machine.State()))
		}
		return h.errorResponse(err)
	}
	return h.okResponse("listening")
}

func (h *Handler) stop() ipc.Response {
	if state := h.machine.State(); state != presence.StateListening {
		return h.errorResponse(fmt.Errorf("cannot stop from state %s", state))
	}

	h.turns.Add(1)
	go func() {
		defer h.turns.Done()
		result := h.machine.StopCapture(h.turnCtx)
		if h.onTurn != nil && !errors.Is(result.Err, ErrNotListening) {
			h.onTurn(result)
		}
	}()
	return h.okResponse("stop requested")
}

func (h *Handler) okResponse(message string) ipc.Response {
	resp := snapshotResponse(h.machine.Snapshot(), false, message)
	resp.OK = true
	return resp
}

func (h *Handler) errorResponse(err error) ipc.Response {
	resp := snapshotResponse(h.machine.Snapshot(), false, "")
	resp.OK = false
	resp.Error = err.Error()
	return resp
}

func snapshotResponse(s Snapshot, withMessages bool, message string) ipc.Response {
	resp := ipc.Response{
		OK:        true,
		Seq:       s.Seq,
		State:     string(s.State),
		Label:     s.State.Label(),
		Disabled:  s.Disabled,
		Accepting: s.Accepting,
		Endpoint:  s.Endpoint,
		Mode:      string(s.Mode),
		Message:   message,
	}
	if withMessages {
		resp.Messages = wireMessages(s.Messages)
	}
	return resp
}

func updateResponse(u Update) ipc.Response {
	resp := snapshotResponse(u.Snapshot, true, "")
	resp.Seq = u.Seq
	resp.Reply = u.Reply
	if u.Notice != nil {
		resp.Notice = &ipc.Notice{
			Kind:   string(u.Notice.Kind),
			Title:  u.Notice.Title,
			Text:   u.Notice.Text,
			Detail: u.Notice.Detail,
		}
	}
	return resp
}

func wireMessages(messages []Message) []ipc.Message {
	out := make([]ipc.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, ipc.Message{
			ID:        msg.ID,
			Text:      msg.Text,
			Origin:    string(msg.Origin),
			CreatedAt: msg.CreatedAt,
		})
	}
	return out
}
