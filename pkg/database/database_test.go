package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/identra/identra/pkg/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default is valid", DefaultConfig(), false},
		{"unknown driver", Config{Driver: "oracle"}, true},
		{"sqlite without path", Config{Driver: DriverSQLite}, true},
		{"postgres without host", Config{Driver: DriverPostgres, Database: "d", User: "u"}, true},
		{"postgres without database", Config{Driver: DriverPostgres, Host: "h", User: "u"}, true},
		{"pool min above max", func() Config {
			c := DefaultConfig()
			c.PoolMin = 10
			c.PoolMax = 2
			return c
		}(), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	t.Run("commits on success", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "kept")
			return err
		})
		if err != nil {
			t.Fatalf("tx: %v", err)
		}
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE name = ?", "kept").Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "dropped"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected original error, got %v", err)
		}
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE name = ?", "dropped").Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("count = %d, want 0 after rollback", count)
		}
	})

	t.Run("begin failure is retryable", func(t *testing.T) {
		closed := openTestDB(t)
		closed.Close()
		err := closed.WithTx(ctx, func(tx *sql.Tx) error { return nil })
		if err == nil {
			t.Fatal("expected error on closed database")
		}
		if !domain.IsRetryable(err) {
			t.Errorf("expected retryable error, got %v", err)
		}
	})
}

func TestHealthAndStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Health(ctx); err != nil {
		t.Errorf("health: %v", err)
	}

	stats := db.PoolStats()
	if stats.Open < 0 || stats.Open > 1 {
		t.Errorf("open connections = %d for in-memory database", stats.Open)
	}

	db.Close()
	if err := db.Health(ctx); err == nil {
		t.Error("expected health failure on closed database")
	}
}

func TestDriverName(t *testing.T) {
	db := openTestDB(t)
	if db.Driver() != DriverSQLite {
		t.Errorf("driver = %q, want %q", db.Driver(), DriverSQLite)
	}
}

func TestRebind(t *testing.T) {
	sqliteDB := &DB{driver: DriverSQLite}
	pgDB := &DB{driver: DriverPostgres}

	query := "SELECT * FROM events WHERE instance_id = ? AND payload LIKE '%?%' AND position > ?"

	if got := sqliteDB.Rebind(query); got != query {
		t.Errorf("sqlite rebind changed query: %q", got)
	}

	want := "SELECT * FROM events WHERE instance_id = $1 AND payload LIKE '%?%' AND position > $2"
	if got := pgDB.Rebind(query); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}
