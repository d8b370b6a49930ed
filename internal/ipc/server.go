package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Streamer is implemented by handlers that keep some connections open and
// push several responses. Stream returns when ctx ends or send fails.
type Streamer interface {
	Streams(Request) bool
	Stream(ctx context.Context, req Request, send func(Response) error) error
}

// Serve accepts unix-socket clients until context cancellation or listener close.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	enc := json.NewEncoder(conn)
	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		_ = enc.Encode(Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		_ = enc.Encode(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	if streamer, ok := handler.(Streamer); ok && streamer.Streams(req) {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// The client sends nothing after the request; a read returning means
		// it hung up.
		go func() {
			_, _ = reader.ReadByte()
			cancel()
		}()

		var mu sync.Mutex
		_ = streamer.Stream(streamCtx, req, func(resp Response) error {
			mu.Lock()
			defer mu.Unlock()
			return enc.Encode(resp)
		})
		return
	}

	_ = enc.Encode(handler.Handle(ctx, req))
}
