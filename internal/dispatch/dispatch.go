// Package dispatch delivers a transcript to the configured remote endpoint and
// returns its plain-text reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// ErrEmptyEndpoint is returned when Send is called without an endpoint URL.
	ErrEmptyEndpoint = errors.New("dispatch endpoint is empty")
	// ErrEmptyReply marks a reply with no text.
	ErrEmptyReply = errors.New("endpoint returned an empty reply")
)

// Endpoint is the opaque remote destination. It is forwarded unchanged.
type Endpoint struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// Validate checks that the endpoint URL is present.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.URL) == "" {
		return ErrEmptyEndpoint
	}
	return nil
}

// Client sends one transcript and returns the reply. One attempt per call.
type Client interface {
	Send(ctx context.Context, text string, endpoint Endpoint) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(context.Context, string, Endpoint) (string, error)

func (f ClientFunc) Send(ctx context.Context, text string, endpoint Endpoint) (string, error) {
	return f(ctx, text, endpoint)
}

// Static returns a canned reply or error.
type Static struct {
	Reply string
	Err   error
}

func (s Static) Send(_ context.Context, _ string, endpoint Endpoint) (string, error) {
	if err := endpoint.Validate(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// Router picks a transport per call from the endpoint scheme.
type Router struct {
	HTTP Client
	GRPC Client
}

// NewRouter wires the default HTTP and gRPC clients.
func NewRouter() *Router {
	return &Router{HTTP: NewHTTPClient(nil), GRPC: NewGRPCClient()}
}

func (r *Router) Send(ctx context.Context, text string, endpoint Endpoint) (string, error) {
	if err := endpoint.Validate(); err != nil {
		return "", err
	}
	scheme, err := Scheme(endpoint.URL)
	if err != nil {
		return "", err
	}

	var client Client
	switch scheme {
	case "http", "https":
		client = r.HTTP
	case "grpc":
		client = r.GRPC
	}
	if client == nil {
		return "", fmt.Errorf("no dispatch transport for scheme %q", scheme)
	}
	return client.Send(ctx, text, endpoint)
}

// Close releases transports that hold connections.
func (r *Router) Close() error {
	if closer, ok := r.GRPC.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Scheme returns the lower-cased transport scheme of raw.
func Scheme(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "http", "https", "grpc":
		return scheme, nil
	case "":
		return "", fmt.Errorf("endpoint %q has no scheme", raw)
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", scheme)
	}
}

// ExpandHeader resolves values written as $NAME or ${NAME} from the environment.
func ExpandHeader(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "$") {
		return value
	}
	return os.Expand(trimmed, os.Getenv)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
