// Package schema provisions the eventstore and projection tables. All DDL
// lives in embedded migration units applied through the migrator, so a
// blank database reaches the expected schema with one call and reruns are
// no-ops.
package schema

import (
	"context"
	"embed"
	"fmt"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/database/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const trackingTable = "schema_migrations"

// NewMigrator returns a migrator loaded with every schema unit.
func NewMigrator(db *database.DB) (*migrate.Migrator, error) {
	m := migrate.New(db, trackingTable)
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("load schema migrations: %w", err)
	}
	return m, nil
}

// Setup applies all pending schema units.
func Setup(ctx context.Context, db *database.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("apply schema migrations: %w", err)
	}
	return nil
}

// Reset drops every managed table. Test setup only.
func Reset(ctx context.Context, db *database.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Reset(ctx); err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}
	return nil
}

// Version reports the highest applied schema version.
func Version(ctx context.Context, db *database.DB) (int, error) {
	m, err := NewMigrator(db)
	if err != nil {
		return 0, err
	}
	return m.Version(ctx)
}
