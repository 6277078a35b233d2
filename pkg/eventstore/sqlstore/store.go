// Package sqlstore implements the eventstore on a relational database.
// One SQL dialect serves both sqlite and postgres; the only writer-side
// coordination is a process-wide mutex, matching the single-writer
// deployment model.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/idgen"
	"github.com/identra/identra/pkg/observability"
)

// DefaultMaxPushBatchSize caps how many events one push may carry.
const DefaultMaxPushBatchSize = 100

const (
	insertEventQuery = `
		INSERT INTO events (
			instance_id, id, aggregate_type, aggregate_id, aggregate_version,
			event_type, payload, creator, owner, position, in_position_order,
			creation_date, revision
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectEventColumns = `
		SELECT instance_id, id, aggregate_type, aggregate_id, aggregate_version,
			event_type, payload, creator, owner, position, in_position_order,
			creation_date, revision
		FROM events`

	maxPositionQuery = `SELECT COALESCE(MAX(position), 0) FROM events`

	latestVersionQuery = `
		SELECT COALESCE(MAX(aggregate_version), 0) FROM events
		WHERE instance_id = ? AND aggregate_type = ? AND aggregate_id = ?`

	insertConstraintQuery = `
		INSERT INTO unique_constraints (instance_id, unique_type, unique_value)
		VALUES (?, ?, ?)`

	deleteConstraintQuery = `
		DELETE FROM unique_constraints
		WHERE instance_id = ? AND unique_type = ? AND unique_value = ?`
)

// Store is the SQL implementation of eventstore.Store.
type Store struct {
	db               *database.DB
	logger           *slog.Logger
	notifier         eventstore.Notifier
	metrics          *observability.Metrics
	maxPushBatchSize int

	// mu serializes pushes so the position read-then-insert stays
	// race-free; readers never take it.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger, defaulting to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNotifier announces committed pushes, e.g. to an event bus that
// wakes projection workers.
func WithNotifier(n eventstore.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithMetrics records push durations and appended-event counts on the
// shared instruments.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// WithMaxPushBatchSize overrides the push batch cap; zero disables it.
func WithMaxPushBatchSize(n int) Option {
	return func(s *Store) {
		s.maxPushBatchSize = n
	}
}

// New builds a Store on an open database. The schema must already be
// provisioned (see pkg/schema).
func New(db *database.DB, opts ...Option) *Store {
	s := &Store{
		db:               db,
		logger:           slog.Default(),
		maxPushBatchSize: DefaultMaxPushBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type aggregateKey struct {
	instanceID string
	typ        domain.AggregateType
	id         string
}

// Push appends all intents atomically. See eventstore.Store.
func (s *Store) Push(ctx context.Context, intents ...*eventstore.Intent) ([]*domain.Event, error) {
	if len(intents) == 0 {
		return nil, nil
	}
	if s.maxPushBatchSize > 0 && len(intents) > s.maxPushBatchSize {
		return nil, domain.ValidationFailed(
			fmt.Sprintf("push of %d events exceeds the batch limit of %d", len(intents), s.maxPushBatchSize))
	}

	events := make([]*domain.Event, len(intents))
	for i, intent := range intents {
		if err := validateIntent(intent); err != nil {
			return nil, err
		}
		payload, err := domain.MarshalPayload(intent.Payload)
		if err != nil {
			return nil, err
		}
		revision := intent.Revision
		if revision == 0 {
			revision = 1
		}
		events[i] = &domain.Event{
			ID:            idgen.MustGenerateSortableID(),
			InstanceID:    intent.Aggregate.InstanceID,
			AggregateType: intent.Aggregate.Type,
			AggregateID:   intent.Aggregate.ID,
			Type:          intent.Type,
			Payload:       payload,
			Creator:       intent.Creator,
			Owner:         intent.Aggregate.Owner,
			Revision:      revision,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var maxPosition int64
		if err := tx.QueryRowContext(ctx, maxPositionQuery).Scan(&maxPosition); err != nil {
			return domain.RetryableInternal(err, "read current position")
		}
		position := maxPosition + 1

		versions := make(map[aggregateKey]uint64, len(intents))
		for i, intent := range intents {
			key := aggregateKey{
				instanceID: intent.Aggregate.InstanceID,
				typ:        intent.Aggregate.Type,
				id:         intent.Aggregate.ID,
			}
			current, known := versions[key]
			if !known {
				var err error
				current, err = s.latestVersionTx(ctx, tx, key)
				if err != nil {
					return err
				}
			}
			if intent.ExpectedVersion != nil && *intent.ExpectedVersion != current {
				return domain.ConcurrencyConflict(key.id, *intent.ExpectedVersion, current)
			}

			evt := events[i]
			evt.AggregateVersion = current + 1
			evt.Position = position
			evt.InPositionOrder = int32(i)
			evt.CreatedAt = now
			versions[key] = evt.AggregateVersion

			if err := s.insertEvent(ctx, tx, evt); err != nil {
				return err
			}
			for _, constraint := range intent.UniqueConstraints {
				if err := s.applyConstraint(ctx, tx, evt.InstanceID, constraint); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordPush(ctx, time.Since(now), len(events))
	}
	s.logger.DebugContext(ctx, "events pushed",
		slog.Int("count", len(events)),
		slog.Int64("position", events[0].Position),
	)
	if s.notifier != nil {
		s.notifier.NotifyPushed(ctx, events)
	}
	return events, nil
}

func validateIntent(intent *eventstore.Intent) error {
	var fields []domain.FieldError
	if intent.Aggregate.InstanceID == "" {
		fields = append(fields, domain.FieldError{Field: "instanceId", Code: "required", Message: "must not be empty"})
	}
	if intent.Aggregate.Type == "" {
		fields = append(fields, domain.FieldError{Field: "aggregateType", Code: "required", Message: "must not be empty"})
	}
	if intent.Aggregate.ID == "" {
		fields = append(fields, domain.FieldError{Field: "aggregateId", Code: "required", Message: "must not be empty"})
	}
	if intent.Type == "" {
		fields = append(fields, domain.FieldError{Field: "eventType", Code: "required", Message: "must not be empty"})
	}
	if len(fields) > 0 {
		return domain.ValidationFailed("invalid push intent", fields...)
	}
	return nil
}

func (s *Store) latestVersionTx(ctx context.Context, tx *sql.Tx, key aggregateKey) (uint64, error) {
	var version uint64
	err := tx.QueryRowContext(ctx, s.db.Rebind(latestVersionQuery),
		key.instanceID, string(key.typ), key.id,
	).Scan(&version)
	if err != nil {
		return 0, domain.RetryableInternal(err, "read aggregate version")
	}
	return version, nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, evt *domain.Event) error {
	_, err := tx.ExecContext(ctx, s.db.Rebind(insertEventQuery),
		evt.InstanceID,
		evt.ID,
		string(evt.AggregateType),
		evt.AggregateID,
		evt.AggregateVersion,
		string(evt.Type),
		nullableText(evt.Payload),
		evt.Creator,
		evt.Owner,
		evt.Position,
		evt.InPositionOrder,
		evt.CreatedAt.UnixMilli(),
		evt.Revision,
	)
	if err != nil {
		// A duplicate (instance, type, id, version) means another writer
		// got there first.
		if isUniqueViolation(err) {
			return domain.ConcurrencyConflict(evt.AggregateID, evt.AggregateVersion-1, evt.AggregateVersion)
		}
		return domain.RetryableInternal(err, "insert event")
	}
	return nil
}

func (s *Store) applyConstraint(ctx context.Context, tx *sql.Tx, instanceID string, constraint *eventstore.UniqueConstraint) error {
	switch constraint.Action {
	case eventstore.ConstraintAdd:
		_, err := tx.ExecContext(ctx, s.db.Rebind(insertConstraintQuery),
			instanceID, constraint.IndexName, constraint.Value)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.AlreadyExists(
					fmt.Sprintf("%s %q is already taken", constraint.IndexName, constraint.Value))
			}
			return domain.RetryableInternal(err, "claim unique constraint")
		}
		return nil
	case eventstore.ConstraintRemove:
		if _, err := tx.ExecContext(ctx, s.db.Rebind(deleteConstraintQuery),
			instanceID, constraint.IndexName, constraint.Value); err != nil {
			return domain.RetryableInternal(err, "release unique constraint")
		}
		return nil
	default:
		return domain.ValidationFailed(fmt.Sprintf("unknown constraint action %d", constraint.Action))
	}
}

// ReadAggregate returns all events of one aggregate in version order.
func (s *Store) ReadAggregate(ctx context.Context, instanceID string, aggregateType domain.AggregateType, aggregateID string) ([]*domain.Event, error) {
	query := selectEventColumns + `
		WHERE instance_id = ? AND aggregate_type = ? AND aggregate_id = ?
		ORDER BY aggregate_version ASC`
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), instanceID, string(aggregateType), aggregateID)
	if err != nil {
		return nil, domain.RetryableInternal(err, "read aggregate events")
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadSince returns up to limit events strictly after the cursor.
func (s *Store) ReadSince(ctx context.Context, after domain.Position, limit int, filter eventstore.Filter) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	var b strings.Builder
	b.WriteString(selectEventColumns)
	b.WriteString(`
		WHERE (position > ? OR (position = ? AND in_position_order > ?))`)
	args := []any{after.Position, after.Position, after.InPositionOrder}

	if len(filter.AggregateTypes) > 0 {
		b.WriteString(" AND aggregate_type IN (")
		for i, typ := range filter.AggregateTypes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, string(typ))
		}
		b.WriteString(")")
	}

	b.WriteString(`
		ORDER BY position ASC, in_position_order ASC
		LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(b.String()), args...)
	if err != nil {
		return nil, domain.RetryableInternal(err, "read events since position")
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CurrentPosition returns the highest committed position.
func (s *Store) CurrentPosition(ctx context.Context) (domain.Position, error) {
	query := `
		SELECT position, in_position_order FROM events
		ORDER BY position DESC, in_position_order DESC
		LIMIT 1`
	var pos domain.Position
	err := s.db.QueryRowContext(ctx, query).Scan(&pos.Position, &pos.InPositionOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, nil
	}
	if err != nil {
		return domain.Position{}, domain.RetryableInternal(err, "read current position")
	}
	return pos, nil
}

// LatestVersion returns the current version of an aggregate, zero when it
// has no events.
func (s *Store) LatestVersion(ctx context.Context, instanceID string, aggregateType domain.AggregateType, aggregateID string) (uint64, error) {
	var version uint64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(latestVersionQuery),
		instanceID, string(aggregateType), aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, domain.RetryableInternal(err, "read aggregate version")
	}
	return version, nil
}

func scanEvents(rows *sql.Rows) ([]*domain.Event, error) {
	var events []*domain.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.RetryableInternal(err, "iterate events")
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*domain.Event, error) {
	var (
		evt          domain.Event
		payload      sql.NullString
		creationDate int64
		typ          string
		eventType    string
	)
	err := rows.Scan(
		&evt.InstanceID,
		&evt.ID,
		&typ,
		&evt.AggregateID,
		&evt.AggregateVersion,
		&eventType,
		&payload,
		&evt.Creator,
		&evt.Owner,
		&evt.Position,
		&evt.InPositionOrder,
		&creationDate,
		&evt.Revision,
	)
	if err != nil {
		return nil, domain.Internal(err, "scan event row")
	}
	evt.AggregateType = domain.AggregateType(typ)
	evt.Type = domain.EventType(eventType)
	if payload.Valid {
		evt.Payload = []byte(payload.String)
	}
	evt.CreatedAt = time.UnixMilli(creationDate)
	return &evt, nil
}

func nullableText(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

// isUniqueViolation recognizes duplicate-key failures from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
