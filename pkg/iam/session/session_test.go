package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore/sqlstore"
	"github.com/identra/identra/pkg/iam/session"
	"github.com/identra/identra/pkg/schema"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newBus(t *testing.T) *command.Bus {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.DefaultConfig())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := schema.Setup(ctx, db); err != nil {
		t.Fatalf("setup schema: %v", err)
	}
	bus := command.NewBus(sqlstore.New(db))
	session.Register(bus, session.Config{Now: func() time.Time { return fixedNow }})
	return bus
}

func TestAdd(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()

	result, err := bus.Execute(ctx, &session.AddCommand{
		InstanceID: "i1", ID: "s1", UserID: "u1", UserAgent: "cli/1.0",
		Lifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var payload session.AddedPayload
	if err := result.Events[0].UnmarshalPayload(&payload); err != nil {
		t.Fatal(err)
	}
	if !payload.ExpiresAt.Equal(fixedNow.Add(time.Hour)) {
		t.Errorf("expiresAt = %v", payload.ExpiresAt)
	}

	t.Run("default lifetime", func(t *testing.T) {
		result, err := bus.Execute(ctx, &session.AddCommand{InstanceID: "i1", ID: "s2", UserID: "u1"})
		if err != nil {
			t.Fatal(err)
		}
		var payload session.AddedPayload
		if err := result.Events[0].UnmarshalPayload(&payload); err != nil {
			t.Fatal(err)
		}
		if !payload.ExpiresAt.Equal(fixedNow.Add(session.DefaultLifetime)) {
			t.Errorf("expiresAt = %v", payload.ExpiresAt)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := bus.Execute(ctx, &session.AddCommand{InstanceID: "i1", ID: "s1", UserID: "u2"})
		if !domain.IsCode(err, domain.CodeAlreadyExists) {
			t.Fatalf("expected ALREADY_EXISTS, got %v", err)
		}
	})
}

func TestTerminate(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	if _, err := bus.Execute(ctx, &session.AddCommand{InstanceID: "i1", ID: "s1", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := bus.Execute(ctx, &session.TerminateCommand{InstanceID: "i1", ID: "s1", Reason: "logout"}); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := bus.Execute(ctx, &session.TerminateCommand{InstanceID: "i1", ID: "s1"}); !domain.IsCode(err, domain.CodeNotActive) {
		t.Fatal("expected NOT_ACTIVE for second terminate")
	}
	if _, err := bus.Execute(ctx, &session.TerminateCommand{InstanceID: "i1", ID: "missing"}); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatal("expected NOT_FOUND for unknown session")
	}
}
