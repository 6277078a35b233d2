package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/observability"
)

// Manager owns one worker per registered projection. It implements
// runner.Service for lifecycle wiring and eventstore.Notifier so pushes
// in the same process wake workers without waiting for the next poll.
type Manager struct {
	db      *database.DB
	store   eventstore.Store
	states  *StateStore
	locks   *LockStore
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	workers map[string]*worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConfig overrides the default worker configuration.
func WithConfig(cfg Config) ManagerOption {
	return func(m *Manager) {
		m.cfg = cfg.withDefaults()
	}
}

// WithLogger sets the logger, defaulting to slog.Default.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records processed events, lag and handler failures on the
// shared instruments.
func WithMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a projection manager. Register handlers before
// Start.
func NewManager(db *database.DB, store eventstore.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		db:      db,
		store:   store,
		states:  NewStateStore(db),
		locks:   NewLockStore(db),
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
		workers: make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a projection. Duplicate names panic at wiring time.
func (m *Manager) Register(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workers[handler.Name()]; exists {
		panic(fmt.Sprintf("projection: %q registered twice", handler.Name()))
	}
	m.workers[handler.Name()] = newWorker(handler, m.store, m.db, m.states, m.locks, m.cfg, m.logger, m.metrics)
}

// Name implements runner.Service.
func (m *Manager) Name() string {
	return "projections"
}

// Start launches one goroutine per registered projection. The workers
// outlive ctx; they stop through Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("projection manager already started")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for _, w := range m.workers {
		m.wg.Add(1)
		go func(w *worker) {
			defer m.wg.Done()
			w.run(runCtx)
		}(w)
	}
	m.logger.InfoContext(ctx, "projection workers started", slog.Int("count", len(m.workers)))
	return nil
}

// Stop cancels all workers and waits for them to finish their current
// batch, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("projection workers did not stop in time: %w", ctx.Err())
	}
}

// Trigger synchronously drains all available events for one projection
// in the caller's goroutine. Each call drains under an owner ID of its
// own, so the projection lock mutually excludes it from the worker; a
// drain already in flight elsewhere makes Trigger a no-op.
func (m *Manager) Trigger(ctx context.Context, name string) error {
	w, err := m.worker(name)
	if err != nil {
		return err
	}
	_, err = w.drain(ctx, uuid.NewString())
	return err
}

// TriggerAll drains every registered projection. Test middleware and the
// low-latency after-push path use it.
func (m *Manager) TriggerAll(ctx context.Context) error {
	m.mu.Lock()
	workers := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	for _, w := range workers {
		if _, err := w.drain(ctx, uuid.NewString()); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild drops and replays one projection from position zero. It waits
// for the projection lock under an owner ID of its own and holds it for
// the whole rebuild; a concurrent worker simply skips its drains until
// the lock frees up again.
func (m *Manager) Rebuild(ctx context.Context, name string) error {
	w, err := m.worker(name)
	if err != nil {
		return err
	}

	owner := uuid.NewString()
	if err := m.acquireBlocking(ctx, name, owner); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.locks.Release(releaseCtx, name, owner); err != nil {
			m.logger.Warn("release rebuild lock failed", slog.String("error", err.Error()))
		}
	}()

	state, err := m.states.Get(ctx, name)
	if err != nil {
		return err
	}

	// Truncate and zero the position in one transaction so a crash
	// mid-rebuild restarts cleanly from the beginning.
	reset := State{Name: name, Status: StatusRunning, CreatedAt: state.CreatedAt}
	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := w.handler.Reset(ctx, tx); err != nil {
			return err
		}
		return m.states.SaveInTx(ctx, tx, &reset)
	})
	if err != nil {
		return fmt.Errorf("reset projection %s: %w", name, err)
	}

	m.logger.InfoContext(ctx, "projection reset, replaying log", slog.String("projection", name))
	applied, err := w.catchUp(ctx, &reset, owner)
	if err != nil {
		return fmt.Errorf("replay projection %s: %w", name, err)
	}
	m.logger.InfoContext(ctx, "projection rebuilt",
		slog.String("projection", name),
		slog.Int("events", applied),
	)
	return nil
}

// acquireBlocking retries the lock until it is granted or ctx ends.
func (m *Manager) acquireBlocking(ctx context.Context, name, owner string) error {
	for {
		acquired, err := m.locks.Acquire(ctx, name, owner, m.cfg.LockTTL)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock for %s: %w", name, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Status snapshots all projection states.
func (m *Manager) Status(ctx context.Context) ([]State, error) {
	return m.states.List(ctx)
}

// Wake pokes the workers subscribed to any of the given aggregate
// types. Empty input wakes everyone.
func (m *Manager) Wake(types ...domain.AggregateType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workers {
		if subscribesTo(w.handler.AggregateTypes(), types) {
			w.poke()
		}
	}
}

// NotifyPushed implements eventstore.Notifier: committed pushes wake the
// matching workers immediately.
func (m *Manager) NotifyPushed(_ context.Context, events []*domain.Event) {
	seen := make(map[domain.AggregateType]struct{}, 2)
	types := make([]domain.AggregateType, 0, 2)
	for _, event := range events {
		if _, dup := seen[event.AggregateType]; !dup {
			seen[event.AggregateType] = struct{}{}
			types = append(types, event.AggregateType)
		}
	}
	m.Wake(types...)
}

func (m *Manager) worker(name string) (*worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, exists := m.workers[name]
	if !exists {
		return nil, domain.NotFound(fmt.Sprintf("projection %q is not registered", name))
	}
	return w, nil
}

func subscribesTo(subscribed, pushed []domain.AggregateType) bool {
	if len(subscribed) == 0 || len(pushed) == 0 {
		return true
	}
	for _, s := range subscribed {
		for _, p := range pushed {
			if s == p {
				return true
			}
		}
	}
	return false
}
