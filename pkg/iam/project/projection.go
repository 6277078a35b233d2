package project

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Projection materializes projections_projects.
type Projection struct {
	db *database.DB
}

// NewProjection creates the projects projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "projects" }

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
			INSERT INTO projections_projects (
				instance_id, id, resource_owner, name, state,
				creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`),
			event.InstanceID, event.AggregateID, event.Owner,
			payload.Name, domain.StateActive.String(),
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case ChangedType:
		var payload ChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_projects SET name = ?, change_date = ?, sequence = ?
			WHERE instance_id = ? AND id = ?`),
			payload.Name, event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, event.AggregateID,
		)
		return err

	case DeactivatedType:
		return p.setState(ctx, tx, event, domain.StateInactive)
	case ReactivatedType:
		return p.setState(ctx, tx, event, domain.StateActive)

	case RemovedType:
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_projects WHERE instance_id = ? AND id = ?"),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
	return nil
}

func (p *Projection) setState(ctx context.Context, tx *sql.Tx, event *domain.Event, state domain.AggregateState) error {
	_, err := tx.ExecContext(ctx, p.db.Rebind(`
		UPDATE projections_projects SET state = ?, change_date = ?, sequence = ?
		WHERE instance_id = ? AND id = ?`),
		state.String(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_projects")
	return err
}
