// Package projection materializes read models from the event log. One
// worker per registered projection tails the log, applies events through
// the projection's handler and advances its position in the same
// transaction, so every table update is exactly-once even though
// delivery is at-least-once.
package projection

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Status of a projection worker as persisted in projection_states.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// State is the persisted progress of one projection, unique by name.
type State struct {
	Name            string
	Position        domain.Position
	Status          Status
	ErrorCount      int
	LastError       string
	LastProcessedAt time.Time
	EventTimestamp  time.Time

	// Coordinates of the last applied event, for operators chasing a
	// stuck projection.
	InstanceID    string
	AggregateType string
	AggregateID   string
	Sequence      uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// applied records the last processed event in the state.
func (s *State) applied(event *domain.Event) {
	s.Position = event.GlobalPosition()
	s.LastProcessedAt = time.Now()
	s.EventTimestamp = event.CreatedAt
	s.InstanceID = event.InstanceID
	s.AggregateType = string(event.AggregateType)
	s.AggregateID = event.AggregateID
	s.Sequence = event.AggregateVersion
	s.Status = StatusRunning
	s.ErrorCount = 0
	s.LastError = ""
}

const (
	selectStateColumns = `
		SELECT name, position, position_offset, status, error_count, last_error,
			last_processed_at, event_timestamp, instance_id, aggregate_type,
			aggregate_id, sequence, created_at, updated_at
		FROM projection_states`

	upsertStateQuery = `
		INSERT INTO projection_states (
			name, position, position_offset, status, error_count, last_error,
			last_processed_at, event_timestamp, instance_id, aggregate_type,
			aggregate_id, sequence, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			position = excluded.position,
			position_offset = excluded.position_offset,
			status = excluded.status,
			error_count = excluded.error_count,
			last_error = excluded.last_error,
			last_processed_at = excluded.last_processed_at,
			event_timestamp = excluded.event_timestamp,
			instance_id = excluded.instance_id,
			aggregate_type = excluded.aggregate_type,
			aggregate_id = excluded.aggregate_id,
			sequence = excluded.sequence,
			updated_at = excluded.updated_at`
)

// StateStore persists projection states. Position advances happen through
// SaveInTx inside the transaction that also updates the projection's
// tables; everything else runs in its own transaction.
type StateStore struct {
	db *database.DB
}

// NewStateStore creates a state store on an open database.
func NewStateStore(db *database.DB) *StateStore {
	return &StateStore{db: db}
}

// Get returns the state of one projection. Unknown names yield a fresh
// stopped state at position zero.
func (s *StateStore) Get(ctx context.Context, name string) (*State, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(selectStateColumns+" WHERE name = ?"), name)
	state, err := scanState(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return &State{Name: name, Status: StatusStopped}, nil
	}
	if err != nil {
		return nil, domain.RetryableInternal(err, "read projection state")
	}
	return state, nil
}

// List returns all known projection states ordered by name.
func (s *StateStore) List(ctx context.Context) ([]State, error) {
	rows, err := s.db.QueryContext(ctx, selectStateColumns+" ORDER BY name ASC")
	if err != nil {
		return nil, domain.RetryableInternal(err, "list projection states")
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		state, err := scanState(rows.Scan)
		if err != nil {
			return nil, domain.Internal(err, "scan projection state")
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.RetryableInternal(err, "iterate projection states")
	}
	return states, nil
}

// Save upserts the state in its own transaction. Use SaveInTx when the
// save must be atomic with projection table updates.
func (s *StateStore) Save(ctx context.Context, state *State) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(upsertStateQuery), stateArgs(state)...)
	if err != nil {
		return domain.RetryableInternal(err, "save projection state")
	}
	return nil
}

// SaveInTx upserts the state inside tx, making the position advance
// atomic with the projection update it belongs to.
func (s *StateStore) SaveInTx(ctx context.Context, tx *sql.Tx, state *State) error {
	_, err := tx.ExecContext(ctx, s.db.Rebind(upsertStateQuery), stateArgs(state)...)
	if err != nil {
		return domain.RetryableInternal(err, "save projection state in transaction")
	}
	return nil
}

func stateArgs(state *State) []any {
	now := time.Now().UnixMilli()
	createdAt := state.CreatedAt.UnixMilli()
	if state.CreatedAt.IsZero() {
		createdAt = now
	}
	return []any{
		state.Name,
		state.Position.Position,
		state.Position.InPositionOrder,
		string(state.Status),
		state.ErrorCount,
		nullString(state.LastError),
		nullTime(state.LastProcessedAt),
		nullTime(state.EventTimestamp),
		nullString(state.InstanceID),
		nullString(state.AggregateType),
		nullString(state.AggregateID),
		state.Sequence,
		createdAt,
		now,
	}
}

func scanState(scan func(dest ...any) error) (*State, error) {
	var (
		state                                  State
		status                                 string
		lastError                              sql.NullString
		lastProcessedAt, eventTimestamp        sql.NullInt64
		instanceID, aggregateType, aggregateID sql.NullString
		sequence                               sql.NullInt64
		createdAt, updatedAt                   int64
	)
	err := scan(
		&state.Name,
		&state.Position.Position,
		&state.Position.InPositionOrder,
		&status,
		&state.ErrorCount,
		&lastError,
		&lastProcessedAt,
		&eventTimestamp,
		&instanceID,
		&aggregateType,
		&aggregateID,
		&sequence,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	state.Status = Status(status)
	state.LastError = lastError.String
	if lastProcessedAt.Valid {
		state.LastProcessedAt = time.UnixMilli(lastProcessedAt.Int64)
	}
	if eventTimestamp.Valid {
		state.EventTimestamp = time.UnixMilli(eventTimestamp.Int64)
	}
	state.InstanceID = instanceID.String
	state.AggregateType = aggregateType.String
	state.AggregateID = aggregateID.String
	state.Sequence = uint64(sequence.Int64)
	state.CreatedAt = time.UnixMilli(createdAt)
	state.UpdatedAt = time.UnixMilli(updatedAt)
	return &state, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
