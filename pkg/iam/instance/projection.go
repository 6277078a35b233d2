package instance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Projection materializes projections_instances. Features and quotas
// are stored as JSON documents in their columns; the authz metadata
// source reads them back per request.
type Projection struct {
	db *database.DB
}

// NewProjection creates the instances projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "instances" }

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
			INSERT INTO projections_instances (
				id, name, state, features, quotas, creation_date, change_date, sequence
			) VALUES (?, ?, ?, '{}', '{}', ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`),
			event.AggregateID, payload.Name, domain.StateActive.String(),
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case ChangedType:
		var payload ChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"UPDATE projections_instances SET name = ?, change_date = ?, sequence = ? WHERE id = ?"),
			payload.Name, event.CreatedAt.UnixMilli(), event.AggregateVersion, event.AggregateID,
		)
		return err

	case FeatureSetType:
		var payload FeatureSetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return p.patchDocument(ctx, tx, event, "features", func(doc map[string]json.RawMessage) error {
			encoded, err := json.Marshal(payload.Enabled)
			if err != nil {
				return err
			}
			doc[payload.Feature] = encoded
			return nil
		})

	case QuotaSetType:
		var payload QuotaSetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return p.patchDocument(ctx, tx, event, "quotas", func(doc map[string]json.RawMessage) error {
			encoded, err := json.Marshal(payload.Limit)
			if err != nil {
				return err
			}
			doc[payload.Quota] = encoded
			return nil
		})

	case DefaultOrgSetType:
		var payload DefaultOrgSetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"UPDATE projections_instances SET default_org_id = ?, change_date = ?, sequence = ? WHERE id = ?"),
			payload.OrgID, event.CreatedAt.UnixMilli(), event.AggregateVersion, event.AggregateID,
		)
		return err
	}
	return nil
}

// patchDocument rewrites one JSON column through a read-modify-write in
// the projection transaction.
func (p *Projection) patchDocument(ctx context.Context, tx *sql.Tx, event *domain.Event, column string, patch func(map[string]json.RawMessage) error) error {
	var raw sql.NullString
	err := tx.QueryRowContext(ctx, p.db.Rebind(
		"SELECT "+column+" FROM projections_instances WHERE id = ?"),
		event.AggregateID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		// Instance row not materialized; the replay will deliver the
		// added event first.
		return nil
	}
	if err != nil {
		return err
	}

	doc := map[string]json.RawMessage{}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &doc); err != nil {
			return err
		}
	}
	if err := patch(doc); err != nil {
		return err
	}
	updated, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, p.db.Rebind(
		"UPDATE projections_instances SET "+column+" = ?, change_date = ?, sequence = ? WHERE id = ?"),
		string(updated), event.CreatedAt.UnixMilli(), event.AggregateVersion, event.AggregateID,
	)
	return err
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_instances")
	return err
}
