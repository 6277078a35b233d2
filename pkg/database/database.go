package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/identra/identra/pkg/domain"
)

// DB wraps a pooled *sql.DB together with the driver it was opened with.
// Storage layers write their SQL with ? placeholders and pass it through
// Rebind, which renders the $1..$n form postgres requires.
type DB struct {
	*sql.DB
	driver string
}

// Open connects according to cfg and verifies the connection. The caller
// owns the returned DB and must Close it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case DriverSQLite:
		db, err = openSQLite(cfg)
	case DriverPostgres:
		db, err = openPostgres(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	return &DB{DB: db, driver: cfg.Driver}, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// An in-memory database exists per connection, so the pool must be a
	// single connection or every statement would see a different database.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.PoolMax)
		db.SetMaxIdleConns(cfg.PoolMin)
		db.SetConnMaxIdleTime(cfg.IdleTimeout())
		db.SetConnMaxLifetime(time.Hour)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config) (*sql.DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.postgresDSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.PoolMax)
	poolCfg.MinConns = int32(cfg.PoolMin)
	poolCfg.MaxConnIdleTime = cfg.IdleTimeout()
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return stdlib.OpenDBFromPool(pool), nil
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites ? placeholders into the $1..$n form when the driver is
// postgres. Question marks inside single-quoted literals are left alone.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inLiteral := false
	for _, r := range query {
		switch {
		case r == '\'':
			inLiteral = !inLiteral
			b.WriteRune(r)
		case r == '?' && !inLiteral:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WithTx runs fn inside a transaction: commit when fn returns nil,
// rollback otherwise. The connection is released on all paths.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.RetryableInternal(err, "begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return domain.Internal(rbErr, fmt.Sprintf("rollback after: %v", err))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.RetryableInternal(err, "commit transaction")
	}
	return nil
}

// Health runs a trivial query and reports reachability.
func (db *DB) Health(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return domain.RetryableInternal(err, "database health check")
	}
	return nil
}

// Stats is a point-in-time view of the pool for observability.
type Stats struct {
	Open    int
	Idle    int
	InUse   int
	Waiting int64
}

// PoolStats snapshots the connection pool.
func (db *DB) PoolStats() Stats {
	s := db.DB.Stats()
	return Stats{
		Open:    s.OpenConnections,
		Idle:    s.Idle,
		InUse:   s.InUse,
		Waiting: s.WaitCount,
	}
}
