package runner

import "context"

// Service is a long-running component managed by the Runner, such as
// the projection manager or the embedded NATS server.
type Service interface {
	// Name identifies the service in logs and errors.
	Name() string

	// Start brings the service up. It must return once the service is
	// ready and must respect ctx cancellation.
	Start(ctx context.Context) error

	// Stop shuts the service down within the ctx deadline.
	Stop(ctx context.Context) error
}

// HealthChecker is optionally implemented by services that can report
// their own health.
type HealthChecker interface {
	Service

	HealthCheck(ctx context.Context) error
}
