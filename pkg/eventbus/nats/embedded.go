package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs an in-process nats-server for single-node
// deployments and tests. It implements runner.Service.
type EmbeddedServer struct {
	host string
	port int

	srv *server.Server
}

// NewEmbeddedServer prepares a server on 127.0.0.1. port <= 0 picks a
// random free port, which is what tests want.
func NewEmbeddedServer(port int) *EmbeddedServer {
	if port <= 0 {
		port = -1
	}
	return &EmbeddedServer{host: "127.0.0.1", port: port}
}

// Name implements runner.Service.
func (e *EmbeddedServer) Name() string {
	return "nats"
}

// Start launches the server and waits until it accepts connections.
func (e *EmbeddedServer) Start(ctx context.Context) error {
	srv, err := server.NewServer(&server.Options{
		Host:  e.host,
		Port:  e.port,
		NoLog: true,
	})
	if err != nil {
		return fmt.Errorf("create embedded nats server: %w", err)
	}

	go srv.Start()

	deadline := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	if !srv.ReadyForConnections(deadline) {
		srv.Shutdown()
		return fmt.Errorf("embedded nats server not ready after %s", deadline)
	}
	e.srv = srv
	return nil
}

// Stop shuts the server down and waits for it.
func (e *EmbeddedServer) Stop(ctx context.Context) error {
	if e.srv == nil {
		return nil
	}
	e.srv.Shutdown()

	done := make(chan struct{})
	go func() {
		e.srv.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("embedded nats server did not stop in time: %w", ctx.Err())
	}
}

// ClientURL returns the URL clients connect to. Valid after Start.
func (e *EmbeddedServer) ClientURL() string {
	if e.srv == nil {
		return ""
	}
	return e.srv.ClientURL()
}
