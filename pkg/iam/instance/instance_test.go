package instance_test

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore/sqlstore"
	"github.com/identra/identra/pkg/iam/instance"
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
	instance.Register(bus)
	return bus
}

func TestAdd(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()

	result, err := bus.Execute(ctx, &instance.AddCommand{ID: "i1", Name: "prod"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	event := result.Events[0]
	if event.Type != instance.AddedType || event.InstanceID != "i1" || event.AggregateID != "i1" {
		t.Errorf("event = %s instance %s aggregate %s", event.Type, event.InstanceID, event.AggregateID)
	}

	if _, err := bus.Execute(ctx, &instance.AddCommand{ID: "i1", Name: "again"}); !domain.IsCode(err, domain.CodeAlreadyExists) {
		t.Fatalf("expected ALREADY_EXISTS, got %v", err)
	}
}

func TestFeaturesAndQuotas(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	if _, err := bus.Execute(ctx, &instance.AddCommand{ID: "i1", Name: "prod"}); err != nil {
		t.Fatal(err)
	}

	if _, err := bus.Execute(ctx, &instance.SetFeatureCommand{ID: "i1", Feature: "user_metadata", Enabled: false}); err != nil {
		t.Fatalf("set feature: %v", err)
	}
	if _, err := bus.Execute(ctx, &instance.SetFeatureCommand{ID: "i1", Feature: "user_metadata", Enabled: false}); !domain.IsCode(err, domain.CodeNoChanges) {
		t.Fatal("expected NO_CHANGES for same feature value")
	}
	if _, err := bus.Execute(ctx, &instance.SetFeatureCommand{ID: "i1", Feature: "user_metadata", Enabled: true}); err != nil {
		t.Fatalf("flip feature: %v", err)
	}

	if _, err := bus.Execute(ctx, &instance.SetQuotaCommand{ID: "i1", Quota: "users", Limit: 100}); err != nil {
		t.Fatalf("set quota: %v", err)
	}
	if _, err := bus.Execute(ctx, &instance.SetQuotaCommand{ID: "i1", Quota: "users", Limit: 100}); !domain.IsCode(err, domain.CodeNoChanges) {
		t.Fatal("expected NO_CHANGES for same quota limit")
	}
	if _, err := bus.Execute(ctx, &instance.SetQuotaCommand{ID: "i1", Quota: "users", Limit: -1}); !domain.IsCode(err, domain.CodeValidationFailed) {
		t.Fatal("expected VALIDATION_FAILED for negative limit")
	}

	if _, err := bus.Execute(ctx, &instance.SetFeatureCommand{ID: "missing", Feature: "x", Enabled: true}); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatal("expected NOT_FOUND for unknown instance")
	}
}

func TestDefaultOrg(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	if _, err := bus.Execute(ctx, &instance.AddCommand{ID: "i1", Name: "prod"}); err != nil {
		t.Fatal(err)
	}

	if _, err := bus.Execute(ctx, &instance.SetDefaultOrgCommand{ID: "i1", OrgID: "o1"}); err != nil {
		t.Fatalf("set default org: %v", err)
	}
	if _, err := bus.Execute(ctx, &instance.SetDefaultOrgCommand{ID: "i1", OrgID: "o1"}); !domain.IsCode(err, domain.CodeNoChanges) {
		t.Fatal("expected NO_CHANGES for same default org")
	}
}

func TestMembers(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	if _, err := bus.Execute(ctx, &instance.AddCommand{ID: "i1", Name: "prod"}); err != nil {
		t.Fatal(err)
	}

	if _, err := bus.Execute(ctx, instance.NewAddMemberCommand("i1", "u1", []string{"IAM_OWNER"})); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := bus.Execute(ctx, instance.NewAddMemberCommand("i1", "u1", []string{"IAM_OWNER"})); !domain.IsCode(err, domain.CodeAlreadyExists) {
		t.Fatal("expected ALREADY_EXISTS for duplicate member")
	}
	if _, err := bus.Execute(ctx, instance.NewChangeMemberCommand("i1", "u1", []string{"IAM_ADMIN"})); err != nil {
		t.Fatalf("change member: %v", err)
	}
	if _, err := bus.Execute(ctx, &instance.RemoveMemberCommand{ID: "i1", UserID: "u1"}); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if _, err := bus.Execute(ctx, &instance.RemoveMemberCommand{ID: "i1", UserID: "u1"}); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatal("expected NOT_FOUND for absent member")
	}
}
