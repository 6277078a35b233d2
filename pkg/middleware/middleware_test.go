package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/middleware"
	"github.com/identra/identra/pkg/observability"
)

type testCmd struct {
	kind      string
	aggregate domain.Aggregate
}

func (c testCmd) Kind() string                { return c.kind }
func (c testCmd) Aggregate() domain.Aggregate { return c.aggregate }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(result *command.Result) command.HandlerFunc {
	return func(context.Context, command.Command) (*command.Result, error) {
		return result, nil
	}
}

func userContext(t *testing.T, instanceID string, permissions []string) *authz.Context {
	t.Helper()
	authCtx, err := authz.NewBuilder().Build(context.Background(), authz.TokenPayload{
		Sub:         "u1",
		InstanceID:  instanceID,
		Permissions: permissions,
	})
	if err != nil {
		t.Fatal(err)
	}
	return authCtx
}

func TestLoggingPassesThrough(t *testing.T) {
	want := &command.Result{AggregateID: "a1"}
	wrapped := middleware.Logging(discard())(okHandler(want))

	result, err := wrapped(context.Background(), testCmd{kind: "note.create"})
	if err != nil || result != want {
		t.Fatalf("result = %v, %v", result, err)
	}

	failing := middleware.Logging(discard())(func(context.Context, command.Command) (*command.Result, error) {
		return nil, domain.NotFound("gone")
	})
	if _, err := failing(context.Background(), testCmd{kind: "note.create"}); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("error = %v", err)
	}
}

func TestRecoveryConvertsPanics(t *testing.T) {
	wrapped := middleware.Recovery(discard())(func(context.Context, command.Command) (*command.Result, error) {
		panic("boom")
	})

	result, err := wrapped(context.Background(), testCmd{kind: "note.create"})
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}
	if !domain.IsCode(err, domain.CodeInternal) {
		t.Fatalf("error = %v, want INTERNAL", err)
	}
}

func TestTracingPassesThrough(t *testing.T) {
	want := &command.Result{AggregateID: "a1"}
	wrapped := middleware.Tracing(observability.Noop())(okHandler(want))

	result, err := wrapped(context.Background(), testCmd{
		kind:      "note.create",
		aggregate: domain.NewAggregate("a1", "note", "i1", ""),
	})
	if err != nil || result != want {
		t.Fatalf("result = %v, %v", result, err)
	}

	failing := middleware.Tracing(observability.Noop())(func(context.Context, command.Command) (*command.Result, error) {
		return nil, errors.New("handler broke")
	})
	if _, err := failing(context.Background(), testCmd{kind: "note.create"}); err == nil {
		t.Fatal("error swallowed")
	}
}

func TestAuthorization(t *testing.T) {
	requirements := map[string]authz.Permission{
		"user.create": {Resource: "user", Action: "write"},
	}
	handled := false
	wrapped := middleware.Authorization(requirements)(func(context.Context, command.Command) (*command.Result, error) {
		handled = true
		return &command.Result{}, nil
	})
	cmd := testCmd{kind: "user.create", aggregate: domain.NewAggregate("u1", "user", "i1", "")}

	t.Run("no context", func(t *testing.T) {
		handled = false
		_, err := wrapped(context.Background(), cmd)
		if !domain.IsCode(err, domain.CodePermissionDenied) || handled {
			t.Fatalf("error = %v, handled = %v", err, handled)
		}
	})

	t.Run("missing permission", func(t *testing.T) {
		handled = false
		ctx := authz.WithContext(context.Background(), userContext(t, "i1", nil))
		_, err := wrapped(ctx, cmd)
		if !domain.IsCode(err, domain.CodePermissionDenied) || handled {
			t.Fatalf("error = %v, handled = %v", err, handled)
		}
	})

	t.Run("granted permission", func(t *testing.T) {
		handled = false
		ctx := authz.WithContext(context.Background(), userContext(t, "i1", []string{"user.write"}))
		if _, err := wrapped(ctx, cmd); err != nil || !handled {
			t.Fatalf("error = %v, handled = %v", err, handled)
		}
	})

	t.Run("wrong instance", func(t *testing.T) {
		handled = false
		ctx := authz.WithContext(context.Background(), userContext(t, "i2", []string{"user.write"}))
		_, err := wrapped(ctx, cmd)
		if !domain.IsCode(err, domain.CodePermissionDenied) || handled {
			t.Fatalf("error = %v, handled = %v", err, handled)
		}
	})

	t.Run("unguarded command passes", func(t *testing.T) {
		handled = false
		other := testCmd{kind: "note.create", aggregate: cmd.aggregate}
		if _, err := wrapped(context.Background(), other); err != nil || !handled {
			t.Fatalf("error = %v, handled = %v", err, handled)
		}
	})
}

type fakeTriggerer struct {
	calls int
	err   error
}

func (f *fakeTriggerer) TriggerAll(context.Context) error {
	f.calls++
	return f.err
}

func TestProjectionTrigger(t *testing.T) {
	t.Run("triggers after success", func(t *testing.T) {
		triggerer := &fakeTriggerer{}
		wrapped := middleware.ProjectionTrigger(triggerer, discard())(okHandler(&command.Result{}))
		if _, err := wrapped(context.Background(), testCmd{kind: "note.create"}); err != nil {
			t.Fatal(err)
		}
		if triggerer.calls != 1 {
			t.Errorf("calls = %d", triggerer.calls)
		}
	})

	t.Run("skips on handler error", func(t *testing.T) {
		triggerer := &fakeTriggerer{}
		wrapped := middleware.ProjectionTrigger(triggerer, discard())(func(context.Context, command.Command) (*command.Result, error) {
			return nil, domain.NoChanges("noop")
		})
		if _, err := wrapped(context.Background(), testCmd{kind: "note.create"}); !domain.IsCode(err, domain.CodeNoChanges) {
			t.Fatal(err)
		}
		if triggerer.calls != 0 {
			t.Errorf("calls = %d", triggerer.calls)
		}
	})

	t.Run("trigger failure is swallowed", func(t *testing.T) {
		triggerer := &fakeTriggerer{err: errors.New("lock trouble")}
		wrapped := middleware.ProjectionTrigger(triggerer, discard())(okHandler(&command.Result{AggregateID: "a1"}))
		result, err := wrapped(context.Background(), testCmd{kind: "note.create"})
		if err != nil || result.AggregateID != "a1" {
			t.Fatalf("result = %v, %v", result, err)
		}
	})
}
