package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/identra/identra/pkg/database"
)

// Migration is a single ordered schema unit.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrator applies ordered schema units idempotently. Each unit runs in
// its own transaction and is recorded in the tracking table; reruns skip
// everything already recorded.
type Migrator struct {
	db         *database.DB
	migrations []Migration
	tableName  string
}

// New creates a migrator tracking applied versions in tableName
// (usually "schema_migrations").
func New(db *database.DB, tableName string) *Migrator {
	return &Migrator{
		db:        db,
		tableName: tableName,
	}
}

// LoadFromFS loads migrations from an embedded filesystem. The directory
// contains pairs named 000001_name.up.sql / 000001_name.down.sql.
func (m *Migrator) LoadFromFS(fsys embed.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := entry.Name()
		parts := strings.SplitN(name, "_", 2)
		if len(parts) != 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", name, err)
		}

		migration, ok := byVersion[version]
		if !ok {
			migration = &Migration{Version: version}
			byVersion[version] = migration
		}

		remainder := parts[1]
		switch {
		case strings.HasSuffix(remainder, ".up.sql"):
			migration.Name = strings.TrimSuffix(remainder, ".up.sql")
			migration.Up = string(content)
		case strings.HasSuffix(remainder, ".down.sql"):
			migration.Down = string(content)
		}
	}

	for _, migration := range byVersion {
		m.migrations = append(m.migrations, *migration)
	}
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
	return nil
}

// Add registers a migration defined in code. Units added this way mix
// with loaded SQL files; ordering is by version across both.
func (m *Migrator) Add(migration Migration) {
	m.migrations = append(m.migrations, migration)
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

func (m *Migrator) ensureTrackingTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at BIGINT NOT NULL
		)
	`, m.tableName)
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create tracking table %s: %w", m.tableName, err)
	}
	return nil
}

// appliedVersions returns the set of versions present in the tracking table.
func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("read applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// Up applies every unit not yet recorded, in version order. Safe to call
// repeatedly.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) error {
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("execute: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			m.db.Rebind(fmt.Sprintf("INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?)", m.tableName)),
			migration.Version, migration.Name, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recently applied unit.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return err
	}
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to roll back")
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == current {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %d not found", current)
	}
	if target.Down == "" {
		return fmt.Errorf("migration %d has no down script", current)
	}
	return m.rollback(ctx, *target)
}

func (m *Migrator) rollback(ctx context.Context, migration Migration) error {
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
			return fmt.Errorf("execute rollback: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			m.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE version = ?", m.tableName)),
			migration.Version,
		)
		return err
	})
}

// Reset tears down everything the migrator manages: all applied units are
// rolled back in reverse order and the tracking table is dropped. Intended
// for test setup.
func (m *Migrator) Reset(ctx context.Context) error {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if !applied[migration.Version] {
			continue
		}
		if migration.Down == "" {
			return fmt.Errorf("migration %d has no down script", migration.Version)
		}
		if err := m.rollback(ctx, migration); err != nil {
			return fmt.Errorf("roll back migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}

	if _, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", m.tableName)); err != nil {
		return fmt.Errorf("drop tracking table: %w", err)
	}
	return nil
}

// Version returns the highest applied version, 0 when none.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return 0, err
	}
	var version int
	err := m.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.tableName),
	).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
