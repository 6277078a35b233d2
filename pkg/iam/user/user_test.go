package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore/sqlstore"
	"github.com/identra/identra/pkg/iam/user"
	"github.com/identra/identra/pkg/schema"
)

const testPassword = "Kx9#mPf2&wQz7!Lr"

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
	user.Register(bus, user.Config{BcryptCost: crypto.MinCost})
	return bus
}

func createCmd(id, username string) *user.CreateCommand {
	return &user.CreateCommand{
		InstanceID:    "i1",
		ID:            id,
		ResourceOwner: "org1",
		Username:      username,
		Email:         username + "@example.com",
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Password:      testPassword,
	}
}

func mustCreate(t *testing.T, bus *command.Bus, id, username string) {
	t.Helper()
	if _, err := bus.Execute(context.Background(), createCmd(id, username)); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

func TestCreate(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()

	result, err := bus.Execute(ctx, createCmd("u1", "ada"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	event := result.Events[0]
	if event.Type != user.CreatedType || event.AggregateVersion != 1 {
		t.Errorf("event = %s v%d", event.Type, event.AggregateVersion)
	}

	var payload user.CreatedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.PasswordHash == "" || payload.PasswordHash == testPassword {
		t.Error("password must be stored hashed")
	}
	if err := crypto.ComparePassword(payload.PasswordHash, testPassword); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}

	t.Run("duplicate id", func(t *testing.T) {
		_, err := bus.Execute(ctx, createCmd("u1", "other"))
		if !domain.IsCode(err, domain.CodeAlreadyExists) {
			t.Fatalf("expected ALREADY_EXISTS, got %v", err)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := bus.Execute(ctx, createCmd("u2", "Ada"))
		if !domain.IsCode(err, domain.CodeAlreadyExists) {
			t.Fatalf("expected ALREADY_EXISTS for case-insensitive duplicate, got %v", err)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		cmd := createCmd("u3", "eve")
		cmd.Email = "not-an-email"
		_, err := bus.Execute(ctx, cmd)
		if !domain.IsCode(err, domain.CodeValidationFailed) {
			t.Fatalf("expected VALIDATION_FAILED, got %v", err)
		}
		if !strings.Contains(err.Error(), "email") {
			t.Errorf("field detail missing: %v", err)
		}
	})
}

func TestUpdate(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	mustCreate(t, bus, "u1", "ada")

	email := "new@example.com"
	result, err := bus.Execute(ctx, &user.UpdateCommand{InstanceID: "i1", ID: "u1", Email: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.Events[0].Type != user.UpdatedType || result.Events[0].AggregateVersion != 2 {
		t.Errorf("event = %s v%d", result.Events[0].Type, result.Events[0].AggregateVersion)
	}

	t.Run("no-op", func(t *testing.T) {
		_, err := bus.Execute(ctx, &user.UpdateCommand{InstanceID: "i1", ID: "u1", Email: &email})
		if !domain.IsCode(err, domain.CodeNoChanges) {
			t.Fatalf("expected NO_CHANGES, got %v", err)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := bus.Execute(ctx, &user.UpdateCommand{InstanceID: "i1", ID: "nope", Email: &email})
		if !domain.IsCode(err, domain.CodeNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("deactivated user", func(t *testing.T) {
		if _, err := bus.Execute(ctx, user.NewDeactivateCommand("i1", "u1")); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		other := "x@example.com"
		_, err := bus.Execute(ctx, &user.UpdateCommand{InstanceID: "i1", ID: "u1", Email: &other})
		if !domain.IsCode(err, domain.CodeNotActive) {
			t.Fatalf("expected NOT_ACTIVE, got %v", err)
		}
	})
}

func TestLifecycle(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	mustCreate(t, bus, "u1", "ada")

	t.Run("deactivate and reactivate", func(t *testing.T) {
		if _, err := bus.Execute(ctx, user.NewDeactivateCommand("i1", "u1")); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := bus.Execute(ctx, user.NewDeactivateCommand("i1", "u1")); !domain.IsCode(err, domain.CodeNotActive) {
			t.Fatalf("second deactivate: expected NOT_ACTIVE, got %v", err)
		}
		if _, err := bus.Execute(ctx, user.NewReactivateCommand("i1", "u1")); err != nil {
			t.Fatalf("reactivate: %v", err)
		}
	})

	t.Run("lock and unlock", func(t *testing.T) {
		if _, err := bus.Execute(ctx, user.NewLockCommand("i1", "u1")); err != nil {
			t.Fatalf("lock: %v", err)
		}
		_, err := bus.Execute(ctx, &user.ChangePasswordCommand{InstanceID: "i1", ID: "u1", Password: testPassword + "x"})
		if !domain.IsCode(err, domain.CodeNotActive) {
			t.Fatalf("password change while locked: expected NOT_ACTIVE, got %v", err)
		}
		if _, err := bus.Execute(ctx, user.NewUnlockCommand("i1", "u1")); err != nil {
			t.Fatalf("unlock: %v", err)
		}
	})

	t.Run("remove frees the username", func(t *testing.T) {
		if _, err := bus.Execute(ctx, user.NewRemoveCommand("i1", "u1")); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, err := bus.Execute(ctx, user.NewDeactivateCommand("i1", "u1")); !domain.IsCode(err, domain.CodeNotFound) {
			t.Fatalf("expected NOT_FOUND after removal, got %v", err)
		}
		mustCreate(t, bus, "u2", "ada")
	})
}

func TestMetadata(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	mustCreate(t, bus, "u1", "ada")

	if _, err := bus.Execute(ctx, &user.SetMetadataCommand{InstanceID: "i1", ID: "u1", Key: "plan", Value: "pro"}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if _, err := bus.Execute(ctx, &user.SetMetadataCommand{InstanceID: "i1", ID: "u1", Key: "plan", Value: "pro"}); !domain.IsCode(err, domain.CodeNoChanges) {
		t.Fatal("expected NO_CHANGES for same value")
	}
	if _, err := bus.Execute(ctx, &user.SetMetadataCommand{InstanceID: "i1", ID: "u1", Key: "plan", Value: "free"}); err != nil {
		t.Fatalf("overwrite metadata: %v", err)
	}
	if _, err := bus.Execute(ctx, &user.RemoveMetadataCommand{InstanceID: "i1", ID: "u1", Key: "plan"}); err != nil {
		t.Fatalf("remove metadata: %v", err)
	}
	if _, err := bus.Execute(ctx, &user.RemoveMetadataCommand{InstanceID: "i1", ID: "u1", Key: "plan"}); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatal("expected NOT_FOUND for absent key")
	}
}

func TestAddress(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	mustCreate(t, bus, "u1", "ada")

	address := user.Address{Country: "CH", Locality: "Zurich", Street: "Bahnhofstrasse 1"}
	if _, err := bus.Execute(ctx, &user.SetAddressCommand{InstanceID: "i1", ID: "u1", Address: address}); err != nil {
		t.Fatalf("set address: %v", err)
	}
	if _, err := bus.Execute(ctx, &user.SetAddressCommand{InstanceID: "i1", ID: "u1", Address: address}); !domain.IsCode(err, domain.CodeNoChanges) {
		t.Fatal("expected NO_CHANGES for identical address")
	}
	address.Street = "Bahnhofstrasse 2"
	if _, err := bus.Execute(ctx, &user.SetAddressCommand{InstanceID: "i1", ID: "u1", Address: address}); err != nil {
		t.Fatalf("change address: %v", err)
	}
}
