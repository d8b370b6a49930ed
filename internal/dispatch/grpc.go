package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully-qualified gRPC service for transcript dispatch.
	ServiceName = "herald.dispatch.v1.Dispatch"
	sendMethod  = "/" + ServiceName + "/Send"

	defaultDialTimeout = 3 * time.Second
)

// Handler answers one dispatched transcript on the server side.
type Handler interface {
	Send(ctx context.Context, text string) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, string) (string, error)

func (f HandlerFunc) Send(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// ServiceDesc describes the Dispatch service. Messages are wrapperspb.StringValue.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "herald/dispatch/v1/dispatch.proto",
}

// RegisterServer exposes h on s under ServiceDesc.
func RegisterServer(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		reply, err := srv.(Handler).Send(ctx, req.(*wrapperspb.StringValue).GetValue())
		if err != nil {
			return nil, err
		}
		return wrapperspb.String(reply), nil
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sendMethod}
	return interceptor(ctx, in, info, call)
}

// GRPCClient sends transcripts to grpc://host:port endpoints. Connections are
// cached per target and reused across turns.
type GRPCClient struct {
	DialTimeout time.Duration

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCClient constructs a client with the default dial timeout.
func NewGRPCClient() *GRPCClient {
	return &GRPCClient{DialTimeout: defaultDialTimeout, conns: make(map[string]*grpc.ClientConn)}
}

func (c *GRPCClient) Send(ctx context.Context, text string, endpoint Endpoint) (string, error) {
	if err := endpoint.Validate(); err != nil {
		return "", err
	}
	target, err := grpcTarget(endpoint.URL)
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, endpoint.Timeout)
	defer cancel()

	conn, err := c.conn(ctx, target)
	if err != nil {
		return "", err
	}

	if len(endpoint.Headers) > 0 {
		pairs := make([]string, 0, len(endpoint.Headers)*2)
		for key, value := range endpoint.Headers {
			pairs = append(pairs, strings.ToLower(key), ExpandHeader(value))
		}
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}

	reply := new(wrapperspb.StringValue)
	if err := conn.Invoke(ctx, sendMethod, wrapperspb.String(text), reply); err != nil {
		return "", fmt.Errorf("invoke %s on %s: %w", sendMethod, target, err)
	}
	return strings.TrimSpace(reply.GetValue()), nil
}

// Close releases every cached connection.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for target, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", target, err))
		}
		delete(c.conns, target)
	}
	return errors.Join(errs...)
}

func (c *GRPCClient) conn(ctx context.Context, target string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	if c.conns == nil {
		c.conns = make(map[string]*grpc.ClientConn)
	}
	conn, ok := c.conns[target]
	c.mu.Unlock()

	if !ok {
		var err error
		conn, err = grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial dispatch grpc %q: %w", target, err)
		}
		c.mu.Lock()
		if existing, raced := c.conns[target]; raced {
			c.mu.Unlock()
			_ = conn.Close()
			conn = existing
		} else {
			c.conns[target] = conn
			c.mu.Unlock()
		}
	}

	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		return nil, fmt.Errorf("wait for dispatch grpc readiness: %w", err)
	}
	return conn, nil
}

// grpcTarget turns grpc://host:port into a dial target.
func grpcTarget(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if !strings.EqualFold(parsed.Scheme, "grpc") {
		return "", fmt.Errorf("endpoint %q is not a grpc:// url", raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return parsed.Host, nil
}

// waitForReady blocks until the connection is Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
