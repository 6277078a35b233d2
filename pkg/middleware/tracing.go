package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/observability"
)

// Tracing wraps every command in a span and records the command
// instruments. Pass observability.Noop() when telemetry is disabled.
func Tracing(tel *observability.Telemetry) command.Middleware {
	tracer := tel.Tracer("command")
	metrics := tel.Metrics

	return func(next command.HandlerFunc) command.HandlerFunc {
		return func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			aggregate := cmd.Aggregate()
			ctx, span := tracer.Start(ctx, "command."+cmd.Kind(),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String("command.kind", cmd.Kind()),
					attribute.String("aggregate.type", string(aggregate.Type)),
					attribute.String("aggregate.id", aggregate.ID),
					attribute.String("instance.id", aggregate.InstanceID),
				),
			)
			defer span.End()

			start := time.Now()
			result, err := next(ctx, cmd)
			metrics.RecordCommand(ctx, cmd.Kind(), time.Since(start), err)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, string(domain.ErrorCode(err)))
				return nil, err
			}

			span.SetAttributes(attribute.Int("events.count", len(result.Events)))
			span.SetStatus(codes.Ok, "")
			return result, nil
		}
	}
}
