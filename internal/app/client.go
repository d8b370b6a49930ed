package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/herald/internal/ipc"
)

const (
	forwardTimeout     = 220 * time.Millisecond
	captureTimeout     = 5 * time.Second
	watchDialTimeout   = time.Second
	messageTimeFormat  = "15:04:05"
	daemonNotRunning   = "herald daemon is not running"
	unsetEndpointLabel = "(unset)"
)

var errDaemonNotRunning = errors.New(daemonNotRunning)

func (r Runner) commandStatus(ctx context.Context, asJSON bool) int {
	resp, err := r.request(ctx, ipc.Request{Command: "status"})
	if errors.Is(err, errDaemonNotRunning) {
		if asJSON {
			return r.printJSON(ipc.Response{OK: true, State: "idle", Label: "Ready"})
		}
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if asJSON {
		return r.printJSON(resp)
	}

	if resp.State == "" {
		resp.State = "idle"
	}
	if resp.Disabled {
		fmt.Fprintf(r.Stdout, "%s (disabled)\n", resp.State)
		return 0
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) commandMessages(ctx context.Context, asJSON bool) int {
	resp, err := r.request(ctx, ipc.Request{Command: "messages"})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if asJSON {
		return r.printJSON(resp)
	}
	for _, msg := range resp.Messages {
		fmt.Fprintln(r.Stdout, formatMessage(msg))
	}
	return 0
}

func (r Runner) commandEndpoint(ctx context.Context, arg string, asJSON bool) int {
	resp, err := r.request(ctx, ipc.Request{Command: "endpoint", Arg: arg})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if asJSON {
		return r.printJSON(resp)
	}
	if resp.Endpoint == "" {
		fmt.Fprintln(r.Stdout, unsetEndpointLabel)
		return 0
	}
	fmt.Fprintln(r.Stdout, resp.Endpoint)
	return 0
}

func (r Runner) commandWatch(ctx context.Context, asJSON bool) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var streamErr error
	err = ipc.Watch(ctx, socketPath, ipc.Request{Command: "watch"}, watchDialTimeout, func(resp ipc.Response) error {
		if !resp.OK {
			streamErr = errors.New(resp.Error)
			return streamErr
		}
		if asJSON {
			return writeJSONLine(r.Stdout, resp)
		}
		fmt.Fprintln(r.Stdout, formatUpdate(resp))
		return nil
	})
	if streamErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", streamErr)
		return 1
	}
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			err = errDaemonNotRunning
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string, arg string, asJSON bool) int {
	resp, err := r.request(ctx, ipc.Request{Command: command, Arg: arg})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if asJSON {
		return r.printJSON(resp)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// request forwards req to the daemon. A missing daemon maps to
// errDaemonNotRunning.
func (r Runner) request(ctx context.Context, req ipc.Request) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, err
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		return ipc.Response{}, errDaemonNotRunning
	}
	return resp, err
}

func (r Runner) printJSON(resp ipc.Response) int {
	if err := writeJSONLine(r.Stdout, resp); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func writeJSONLine(w io.Writer, resp ipc.Response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = w.Write(append(encoded, '\n'))
	return err
}

func formatMessage(msg ipc.Message) string {
	return fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.Local().Format(messageTimeFormat), msg.Origin, msg.Text)
}

// formatUpdate renders one watch update as key=value pairs.
func formatUpdate(resp ipc.Response) string {
	parts := []string{
		fmt.Sprintf("seq=%d", resp.Seq),
		"state=" + resp.State,
		fmt.Sprintf("accepting=%t", resp.Accepting),
	}
	if resp.Disabled {
		parts = append(parts, "disabled=true")
	}
	if resp.Reply != "" {
		parts = append(parts, fmt.Sprintf("reply=%q", resp.Reply))
	}
	if resp.Notice != nil {
		parts = append(parts, "notice="+resp.Notice.Kind, fmt.Sprintf("text=%q", resp.Notice.Text))
	}
	if len(resp.Messages) > 0 {
		parts = append(parts, fmt.Sprintf("messages=%d", len(resp.Messages)))
	}
	return strings.Join(parts, " ")
}

// forwardTimeoutFor bounds one request. Commands that may open the capture
// device reply only after the device is open.
func forwardTimeoutFor(command string) time.Duration {
	switch command {
	case "start", "toggle":
		return captureTimeout
	default:
		return forwardTimeout
	}
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, forwardTimeoutFor(req.Command))
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
