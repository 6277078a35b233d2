package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/identra/identra/pkg/domain"
)

// Metrics holds the instruments shared by the command bus, the
// eventstore and the projection workers.
type Metrics struct {
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	EventsAppended metric.Int64Counter
	PushDuration   metric.Float64Histogram

	ProjectionLag       metric.Float64Gauge
	ProjectionErrors    metric.Int64Counter
	ProjectionProcessed metric.Int64Counter
}

// NewMetrics registers all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"identra.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"identra.command.total",
		metric.WithDescription("Commands executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"identra.command.errors",
		metric.WithDescription("Commands that returned an error, by code"),
	)
	if err != nil {
		return nil, fmt.Errorf("create command.errors: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"identra.events.appended",
		metric.WithDescription("Events appended to the log"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events.appended: %w", err)
	}

	m.PushDuration, err = meter.Float64Histogram(
		"identra.eventstore.push.duration",
		metric.WithDescription("Eventstore push duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create eventstore.push.duration: %w", err)
	}

	m.ProjectionLag, err = meter.Float64Gauge(
		"identra.projection.lag",
		metric.WithDescription("Seconds between an event's commit and its projection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create projection.lag: %w", err)
	}

	m.ProjectionErrors, err = meter.Int64Counter(
		"identra.projection.errors",
		metric.WithDescription("Projection handler failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("create projection.errors: %w", err)
	}

	m.ProjectionProcessed, err = meter.Int64Counter(
		"identra.projection.processed",
		metric.WithDescription("Events applied to projections"),
	)
	if err != nil {
		return nil, fmt.Errorf("create projection.processed: %w", err)
	}

	return m, nil
}

// RecordCommand records one command execution.
func (m *Metrics) RecordCommand(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("command", kind))
	m.CommandDuration.Record(ctx, duration.Seconds(), attrs)
	m.CommandTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.CommandErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command", kind),
			attribute.String("code", string(domain.ErrorCode(err))),
		))
	}
}

// RecordPush records one eventstore push.
func (m *Metrics) RecordPush(ctx context.Context, duration time.Duration, eventCount int) {
	m.PushDuration.Record(ctx, duration.Seconds())
	m.EventsAppended.Add(ctx, int64(eventCount))
}

// RecordProjectionApplied records successfully projected events and the
// lag of the newest one.
func (m *Metrics) RecordProjectionApplied(ctx context.Context, projection string, count int, lag time.Duration) {
	attrs := metric.WithAttributes(attribute.String("projection", projection))
	m.ProjectionProcessed.Add(ctx, int64(count), attrs)
	m.ProjectionLag.Record(ctx, lag.Seconds(), attrs)
}

// RecordProjectionError records a projection handler failure.
func (m *Metrics) RecordProjectionError(ctx context.Context, projection string) {
	m.ProjectionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", projection)))
}
