package projection

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/observability"
)

// worker is the single long-lived loop of one projection. It polls the
// event log, applies batches under the projection lock and backs off on
// failures. The lock is held per drain, not for the worker's lifetime.
// Trigger and Rebuild drain under owner IDs of their own, so the lock
// mutually excludes them from a worker drain in flight.
type worker struct {
	handler Handler
	store   eventstore.Store
	db      *database.DB
	states  *StateStore
	locks   *LockStore
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics

	// owner identifies this worker in projection_locks.
	owner string

	// wake is poked by the manager when new events arrive, cutting the
	// poll latency. Capacity 1; a pending wake-up is wake enough.
	wake chan struct{}
}

func newWorker(handler Handler, store eventstore.Store, db *database.DB, states *StateStore, locks *LockStore, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *worker {
	return &worker{
		handler: handler,
		store:   store,
		db:      db,
		states:  states,
		locks:   locks,
		cfg:     cfg,
		logger:  logger.With(slog.String("projection", handler.Name())),
		metrics: metrics,
		owner:   uuid.NewString(),
		wake:    make(chan struct{}, 1),
	}
}

// run is the worker loop. It exits when ctx is cancelled, after
// finishing the batch in flight and marking the projection stopped.
func (w *worker) run(ctx context.Context) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 500 * time.Millisecond
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	for {
		applied, err := w.drain(ctx, w.owner)
		if ctx.Err() != nil {
			w.markStopped()
			return
		}
		if err != nil {
			delay := retry.NextBackOff()
			w.logger.ErrorContext(ctx, "projection drain failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			if !w.sleep(ctx, delay) {
				w.markStopped()
				return
			}
			continue
		}
		retry.Reset()
		if applied > 0 {
			// More events may already be waiting.
			continue
		}
		if !w.idle(ctx) {
			w.markStopped()
			return
		}
	}
}

// drain applies all currently available events under the projection
// lock, taken as owner. It returns how many events were applied; zero
// with a nil error also covers the lock being held elsewhere.
func (w *worker) drain(ctx context.Context, owner string) (int, error) {
	acquired, err := w.locks.Acquire(ctx, w.handler.Name(), owner, w.cfg.LockTTL)
	if err != nil {
		return 0, err
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.locks.Release(releaseCtx, w.handler.Name(), owner); err != nil {
			w.logger.Warn("release projection lock failed", slog.String("error", err.Error()))
		}
	}()

	state, err := w.states.Get(ctx, w.handler.Name())
	if err != nil {
		return 0, err
	}
	return w.catchUp(ctx, state, owner)
}

// catchUp pages the log from the state's position to the head. The
// caller must hold the projection lock as owner; catchUp renews it at
// half TTL.
func (w *worker) catchUp(ctx context.Context, state *State, owner string) (int, error) {
	filter := eventstore.Filter{AggregateTypes: w.handler.AggregateTypes()}
	lastRenewal := time.Now()
	total := 0

	for ctx.Err() == nil {
		events, err := w.store.ReadSince(ctx, state.Position, w.cfg.BatchSize, filter)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			return total, nil
		}

		for _, event := range events {
			if err := w.applyEvent(ctx, state, event); err != nil {
				w.recordFailure(state, err)
				return total, err
			}
			total++
		}

		if time.Since(lastRenewal) > w.cfg.LockTTL/2 {
			held, err := w.locks.Renew(ctx, w.handler.Name(), owner, w.cfg.LockTTL)
			if err != nil {
				return total, err
			}
			if !held {
				w.logger.Warn("projection lock lost mid-drain")
				return total, nil
			}
			lastRenewal = time.Now()
		}
	}
	return total, nil
}

// applyEvent runs the handler and the position advance in one
// transaction. The in-memory state is only updated after commit.
func (w *worker) applyEvent(ctx context.Context, state *State, event *domain.Event) error {
	next := *state
	next.applied(event)
	err := w.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := w.handler.Apply(ctx, tx, event); err != nil {
			return err
		}
		return w.states.SaveInTx(ctx, tx, &next)
	})
	if err != nil {
		return err
	}
	*state = next
	if w.metrics != nil {
		w.metrics.RecordProjectionApplied(ctx, w.handler.Name(), 1, time.Since(event.CreatedAt))
	}
	return nil
}

// recordFailure persists the error on the state row without moving the
// position. The status flips to error once the count passes the
// threshold.
func (w *worker) recordFailure(state *State, cause error) {
	state.ErrorCount++
	state.LastError = cause.Error()
	if state.ErrorCount > w.cfg.MaxErrorCount {
		state.Status = StatusError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if w.metrics != nil {
		w.metrics.RecordProjectionError(ctx, w.handler.Name())
	}
	if err := w.states.Save(ctx, state); err != nil {
		w.logger.Error("persist projection error state failed", slog.String("error", err.Error()))
	}
}

// markStopped flips the persisted status on shutdown.
func (w *worker) markStopped() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := w.states.Get(ctx, w.handler.Name())
	if err != nil {
		w.logger.Error("load state on shutdown failed", slog.String("error", err.Error()))
		return
	}
	state.Status = StatusStopped
	if err := w.states.Save(ctx, state); err != nil {
		w.logger.Error("persist stopped state failed", slog.String("error", err.Error()))
	}
}

// idle waits for the next poll tick or a wake-up. It returns false when
// ctx was cancelled.
func (w *worker) idle(ctx context.Context) bool {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// poke requests an early drain without blocking.
func (w *worker) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}
