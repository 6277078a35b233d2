package session

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Projection materializes projections_sessions.
type Projection struct {
	db *database.DB
}

// NewProjection creates the sessions projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "sessions" }

func (p *Projection) AggregateTypes() []domain.AggregateType {
	return []domain.AggregateType{AggregateType}
}

func (p *Projection) Apply(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	switch event.Type {
	case AddedType:
		var payload AddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			INSERT INTO projections_sessions (
				instance_id, id, user_id, user_agent, state, expiration,
				creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`),
			event.InstanceID, event.AggregateID, payload.UserID, payload.UserAgent,
			StateActive.String(), payload.ExpiresAt.UnixMilli(),
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case TerminatedType:
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_sessions SET state = ?, change_date = ?, sequence = ?
			WHERE instance_id = ? AND id = ?`),
			StateTerminated.String(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, event.AggregateID,
		)
		return err
	}
	return nil
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_sessions")
	return err
}
