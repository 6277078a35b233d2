// Package middleware provides the cross-cutting wrappers for the
// command bus: logging, panic recovery, tracing with metrics,
// authorization and post-commit projection triggering.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/identra/identra/pkg/command"
)

// Logging logs every command with its outcome and timing.
func Logging(logger *slog.Logger) command.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next command.HandlerFunc) command.HandlerFunc {
		return func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			start := time.Now()
			aggregate := cmd.Aggregate()

			result, err := next(ctx, cmd)

			duration := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "command failed",
					slog.String("command", cmd.Kind()),
					slog.String("aggregate_id", aggregate.ID),
					slog.String("instance_id", aggregate.InstanceID),
					slog.Int64("duration_ms", duration.Milliseconds()),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			logger.InfoContext(ctx, "command executed",
				slog.String("command", cmd.Kind()),
				slog.String("aggregate_id", aggregate.ID),
				slog.String("instance_id", aggregate.InstanceID),
				slog.Int("events", len(result.Events)),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)
			return result, nil
		}
	}
}
