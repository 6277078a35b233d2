package authrequest

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Projection materializes projections_auth_requests. The code column
// keeps the issued code until the request leaves the log; the unique
// constraint, not this table, guards single use.
type Projection struct {
	db *database.DB
}

// NewProjection creates the auth requests projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "auth_requests" }

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
		scopes, err := json.Marshal(payload.Scopes)
		if err != nil {
			return domain.Internal(err, "encode scopes")
		}
		_, err = tx.ExecContext(ctx, p.db.Rebind(`
			INSERT INTO projections_auth_requests (
				instance_id, id, client_id, redirect_uri, scopes, state,
				creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`),
			event.InstanceID, event.AggregateID, payload.ClientID,
			payload.RedirectURI, string(scopes), StateAdded.String(),
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case CodeAddedType:
		var payload CodeAddedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_auth_requests
			SET user_id = ?, code = ?, state = ?, change_date = ?, sequence = ?
			WHERE instance_id = ? AND id = ?`),
			payload.UserID, payload.Code, StateCodeIssued.String(),
			event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, event.AggregateID,
		)
		return err

	case SucceededType:
		return p.setState(ctx, tx, event, StateSucceeded)
	case FailedType:
		return p.setState(ctx, tx, event, StateFailed)
	}
	return nil
}

func (p *Projection) setState(ctx context.Context, tx *sql.Tx, event *domain.Event, state State) error {
	_, err := tx.ExecContext(ctx, p.db.Rebind(`
		UPDATE projections_auth_requests SET state = ?, change_date = ?, sequence = ?
		WHERE instance_id = ? AND id = ?`),
		state.String(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_auth_requests")
	return err
}
