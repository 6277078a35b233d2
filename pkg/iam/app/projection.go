package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Projection materializes projections_apps. Redirect URIs are stored as
// a JSON array in their column.
type Projection struct {
	db *database.DB
}

// NewProjection creates the apps projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "apps" }

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
		uris, err := encodeURIs(payload.RedirectURIs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, p.db.Rebind(`
			INSERT INTO projections_apps (
				instance_id, id, project_id, resource_owner, name, client_id,
				redirect_uris, auth_method, state, creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`),
			event.InstanceID, event.AggregateID, payload.ProjectID, event.Owner,
			payload.Name, payload.ClientID, uris, payload.AuthMethod,
			domain.StateActive.String(),
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case ChangedType:
		var payload ChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		sets := []string{"change_date = ?", "sequence = ?"}
		args := []any{event.CreatedAt.UnixMilli(), event.AggregateVersion}
		if payload.Name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *payload.Name)
		}
		if payload.RedirectURIs != nil {
			uris, err := encodeURIs(*payload.RedirectURIs)
			if err != nil {
				return err
			}
			sets = append(sets, "redirect_uris = ?")
			args = append(args, uris)
		}
		if payload.AuthMethod != nil {
			sets = append(sets, "auth_method = ?")
			args = append(args, *payload.AuthMethod)
		}
		args = append(args, event.InstanceID, event.AggregateID)
		query := fmt.Sprintf(
			"UPDATE projections_apps SET %s WHERE instance_id = ? AND id = ?",
			strings.Join(sets, ", "),
		)
		_, err := tx.ExecContext(ctx, p.db.Rebind(query), args...)
		return err

	case DeactivatedType:
		return p.setState(ctx, tx, event, domain.StateInactive)
	case ReactivatedType:
		return p.setState(ctx, tx, event, domain.StateActive)

	case RemovedType:
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_apps WHERE instance_id = ? AND id = ?"),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
	return nil
}

func (p *Projection) setState(ctx context.Context, tx *sql.Tx, event *domain.Event, state domain.AggregateState) error {
	_, err := tx.ExecContext(ctx, p.db.Rebind(`
		UPDATE projections_apps SET state = ?, change_date = ?, sequence = ?
		WHERE instance_id = ? AND id = ?`),
		state.String(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_apps")
	return err
}

func encodeURIs(uris []string) (string, error) {
	encoded, err := json.Marshal(uris)
	if err != nil {
		return "", domain.Internal(err, "encode redirect uris")
	}
	return string(encoded), nil
}
