package schema

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/database"
)

func TestSetupProvisionsAllTables(t *testing.T) {
	db, err := database.Open(context.Background(), database.DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	if err := Setup(ctx, db); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tables := []string{
		"events",
		"unique_constraints",
		"projection_states",
		"projection_locks",
		"projections_users",
		"projections_orgs",
		"projections_org_domains",
		"projections_projects",
		"projections_apps",
		"projections_sessions",
		"projections_auth_requests",
		"projections_memberships",
		"projections_user_metadata",
		"projections_user_addresses",
		"projections_instances",
	}
	for _, table := range tables {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	t.Run("setup is idempotent", func(t *testing.T) {
		if err := Setup(ctx, db); err != nil {
			t.Fatalf("second setup: %v", err)
		}
	})

	t.Run("version reflects applied units", func(t *testing.T) {
		version, err := Version(ctx, db)
		if err != nil {
			t.Fatal(err)
		}
		if version < 14 {
			t.Errorf("version = %d, want >= 14", version)
		}
	})

	t.Run("reset drops everything", func(t *testing.T) {
		if err := Reset(ctx, db); err != nil {
			t.Fatalf("reset: %v", err)
		}
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err == nil {
			t.Error("events table survived reset")
		}
		if err := Setup(ctx, db); err != nil {
			t.Fatalf("setup after reset: %v", err)
		}
	})
}
