package middleware

import (
	"context"
	"log/slog"

	"github.com/identra/identra/pkg/command"
)

// Triggerer drains projections synchronously; the projection manager
// implements it.
type Triggerer interface {
	TriggerAll(ctx context.Context) error
}

// ProjectionTrigger drains all projections after a successful command,
// giving read-after-write behavior within one process. Tests and
// low-traffic deployments use it; under load the poll/wake loop of the
// workers is enough.
func ProjectionTrigger(triggerer Triggerer, logger *slog.Logger) command.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next command.HandlerFunc) command.HandlerFunc {
		return func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			result, err := next(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if err := triggerer.TriggerAll(ctx); err != nil {
				// The events are committed; projections will catch up on
				// their own loop.
				logger.WarnContext(ctx, "projection trigger failed",
					slog.String("command", cmd.Kind()),
					slog.String("error", err.Error()),
				)
			}
			return result, nil
		}
	}
}
