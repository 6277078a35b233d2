package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
)

// Recovery converts handler panics into INTERNAL errors so one bad
// command cannot take the process down.
func Recovery(logger *slog.Logger) command.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next command.HandlerFunc) command.HandlerFunc {
		return func(ctx context.Context, cmd command.Command) (result *command.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "command handler panicked",
						slog.String("command", cmd.Kind()),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)
					result = nil
					err = domain.Internal(fmt.Errorf("%v", r), "command handler panicked")
				}
			}()
			return next(ctx, cmd)
		}
	}
}
