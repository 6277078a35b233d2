package org

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Projection materializes projections_orgs and projections_org_domains.
// Both tables change together on domain events, so one handler owns
// them under a single cursor.
type Projection struct {
	db *database.DB
}

// NewProjection creates the orgs projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "orgs" }

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
			INSERT INTO projections_orgs (
				instance_id, id, name, state, creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`),
			event.InstanceID, event.AggregateID, payload.Name,
			domain.StateActive.String(),
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case ChangedType:
		var payload ChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_orgs SET name = ?, change_date = ?, sequence = ?
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
		if _, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_org_domains WHERE instance_id = ? AND org_id = ?"),
			event.InstanceID, event.AggregateID,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_orgs WHERE instance_id = ? AND id = ?"),
			event.InstanceID, event.AggregateID,
		)
		return err

	case DomainAddedType:
		payload, err := domainPayload(event)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, p.db.Rebind(`
			INSERT INTO projections_org_domains (
				instance_id, org_id, domain, is_primary, is_verified,
				creation_date, change_date, sequence
			) VALUES (?, ?, ?, FALSE, FALSE, ?, ?, ?)
			ON CONFLICT (instance_id, domain) DO NOTHING`),
			event.InstanceID, event.AggregateID, payload.Domain,
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case DomainVerifiedType:
		payload, err := domainPayload(event)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_org_domains SET is_verified = TRUE, change_date = ?, sequence = ?
			WHERE instance_id = ? AND domain = ?`),
			event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, payload.Domain,
		)
		return err

	case DomainPrimarySetType:
		payload, err := domainPayload(event)
		if err != nil {
			return err
		}
		// Demote the old primary first; exactly one row per org may carry
		// the flag.
		if _, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_org_domains SET is_primary = FALSE, change_date = ?, sequence = ?
			WHERE instance_id = ? AND org_id = ? AND is_primary`),
			event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, event.AggregateID,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_org_domains SET is_primary = TRUE, change_date = ?, sequence = ?
			WHERE instance_id = ? AND domain = ?`),
			event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, payload.Domain,
		); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_orgs SET primary_domain = ?, change_date = ?, sequence = ?
			WHERE instance_id = ? AND id = ?`),
			payload.Domain, event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, event.AggregateID,
		)
		return err

	case DomainRemovedType:
		payload, err := domainPayload(event)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_org_domains WHERE instance_id = ? AND domain = ?"),
			event.InstanceID, payload.Domain,
		)
		return err
	}
	return nil
}

func (p *Projection) setState(ctx context.Context, tx *sql.Tx, event *domain.Event, state domain.AggregateState) error {
	_, err := tx.ExecContext(ctx, p.db.Rebind(`
		UPDATE projections_orgs SET state = ?, change_date = ?, sequence = ?
		WHERE instance_id = ? AND id = ?`),
		state.String(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM projections_org_domains"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_orgs")
	return err
}

func domainPayload(event *domain.Event) (DomainPayload, error) {
	var payload DomainPayload
	err := event.UnmarshalPayload(&payload)
	return payload, err
}
