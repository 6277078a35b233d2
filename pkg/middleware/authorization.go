package middleware

import (
	"context"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
)

// Authorization enforces per-command permissions against the
// authorization context. Commands without an entry in requirements pass
// through; handlers still run their own feature and quota gates.
//
// A command whose context targets a different instance than its
// aggregate is rejected, which is what keeps tenants isolated at the
// write side.
func Authorization(requirements map[string]authz.Permission) command.Middleware {
	return func(next command.HandlerFunc) command.HandlerFunc {
		return func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			required, guarded := requirements[cmd.Kind()]
			if !guarded {
				return next(ctx, cmd)
			}

			authCtx := authz.FromContext(ctx)
			if authCtx == nil {
				return nil, domain.PermissionDenied("no authorization context")
			}
			if aggregate := cmd.Aggregate(); aggregate.InstanceID != authCtx.InstanceID() {
				return nil, domain.PermissionDenied("command targets a different instance")
			}
			if err := authCtx.RequireInstancePermission(required); err != nil {
				return nil, err
			}
			return next(ctx, cmd)
		}
	}
}
