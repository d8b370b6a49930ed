package dispatch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Probe checks that the endpoint accepts connections without sending a
// transcript. HTTP endpoints get a TCP dial; gRPC endpoints must reach Ready.
func Probe(ctx context.Context, raw string) error {
	scheme, err := Scheme(raw)
	if err != nil {
		return err
	}

	if scheme == "grpc" {
		target, err := grpcTarget(raw)
		if err != nil {
			return err
		}
		conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial dispatch grpc %q: %w", target, err)
		}
		defer conn.Close()
		conn.Connect()
		if err := waitForReady(ctx, conn); err != nil {
			return fmt.Errorf("wait for dispatch grpc readiness: %w", err)
		}
		return nil
	}

	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("endpoint %q has no host", raw)
	}
	port := parsed.Port()
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(parsed.Hostname(), port))
	if err != nil {
		return fmt.Errorf("connect %s: %w", raw, err)
	}
	return conn.Close()
}
