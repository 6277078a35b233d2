package project_test

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore/sqlstore"
	"github.com/identra/identra/pkg/iam/project"
	"github.com/identra/identra/pkg/schema"
)

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
	project.Register(bus)
	return bus
}

func addCmd(id, owner, name string) *project.AddCommand {
	return &project.AddCommand{InstanceID: "i1", ID: id, ResourceOwner: owner, Name: name}
}

func TestNameScoping(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()

	if _, err := bus.Execute(ctx, addCmd("p1", "o1", "Billing")); err != nil {
		t.Fatalf("add: %v", err)
	}

	t.Run("duplicate name in same org", func(t *testing.T) {
		_, err := bus.Execute(ctx, addCmd("p2", "o1", "billing"))
		if !domain.IsCode(err, domain.CodeAlreadyExists) {
			t.Fatalf("expected ALREADY_EXISTS, got %v", err)
		}
	})

	t.Run("same name in another org", func(t *testing.T) {
		if _, err := bus.Execute(ctx, addCmd("p3", "o2", "Billing")); err != nil {
			t.Fatalf("add in second org: %v", err)
		}
	})

	t.Run("rename releases the name", func(t *testing.T) {
		if _, err := bus.Execute(ctx, &project.ChangeCommand{InstanceID: "i1", ID: "p1", Name: "Invoicing"}); err != nil {
			t.Fatalf("rename: %v", err)
		}
		if _, err := bus.Execute(ctx, addCmd("p4", "o1", "Billing")); err != nil {
			t.Fatalf("reclaim name: %v", err)
		}
	})
}

func TestLifecycleAndMembers(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	if _, err := bus.Execute(ctx, addCmd("p1", "o1", "Billing")); err != nil {
		t.Fatal(err)
	}

	if _, err := bus.Execute(ctx, project.NewAddMemberCommand("i1", "p1", "u1", []string{"PROJECT_OWNER"})); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if _, err := bus.Execute(ctx, project.NewDeactivateCommand("i1", "p1")); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := bus.Execute(ctx, project.NewAddMemberCommand("i1", "p1", "u2", []string{"PROJECT_VIEWER"})); !domain.IsCode(err, domain.CodeNotActive) {
		t.Fatal("expected NOT_ACTIVE for member change on deactivated project")
	}
	if _, err := bus.Execute(ctx, project.NewReactivateCommand("i1", "p1")); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	t.Run("remove frees the name", func(t *testing.T) {
		if _, err := bus.Execute(ctx, project.NewRemoveCommand("i1", "p1")); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, err := bus.Execute(ctx, addCmd("p2", "o1", "Billing")); err != nil {
			t.Fatalf("reclaim name: %v", err)
		}
	})
}
