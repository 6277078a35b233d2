package projection

import (
	"context"
	"database/sql"
	"time"

	"github.com/identra/identra/pkg/domain"
)

// Handler materializes one projection. Implementations own their tables
// exclusively; nothing else writes them.
type Handler interface {
	// Name is the unique projection name, also the key in
	// projection_states and projection_locks.
	Name() string

	// AggregateTypes narrows which events the worker reads. Empty means
	// all events.
	AggregateTypes() []domain.AggregateType

	// Apply updates the projection tables for one event inside tx. It
	// must be idempotent: replaying an already-applied event leaves the
	// tables unchanged. Unknown event types must be ignored.
	Apply(ctx context.Context, tx *sql.Tx, event *domain.Event) error

	// Reset empties the projection tables inside tx, for rebuild.
	Reset(ctx context.Context, tx *sql.Tx) error
}

// Config tunes all workers of a manager.
type Config struct {
	// PollInterval is the sleep between empty reads.
	PollInterval time.Duration

	// BatchSize bounds one read from the event log.
	BatchSize int

	// MaxErrorCount is how many consecutive handler failures a worker
	// tolerates before surfacing status error. It keeps retrying either
	// way; the status is for operators.
	MaxErrorCount int

	// LockTTL is the lifetime of the projection lock; holders renew at
	// half TTL.
	LockTTL time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:  time.Second,
		BatchSize:     200,
		MaxErrorCount: 5,
		LockTTL:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxErrorCount <= 0 {
		c.MaxErrorCount = defaults.MaxErrorCount
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
