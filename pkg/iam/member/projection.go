// Package member materializes the memberships read model. Memberships
// are events of their carrier aggregates (org, project, instance); this
// projection folds all of them into one queryable table.
package member

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/iam/instance"
	"github.com/identra/identra/pkg/iam/org"
	"github.com/identra/identra/pkg/iam/project"
	"github.com/identra/identra/pkg/iam/user"
)

// Member types in projections_memberships.
const (
	TypeOrg      = "org"
	TypeProject  = "project"
	TypeInstance = "instance"
)

// memberPayload is the shared shape of all member events.
type memberPayload struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles,omitempty"`
}

// Projection materializes projections_memberships across all carrier
// aggregates. Removing a user or a carrier removes its rows.
type Projection struct {
	db *database.DB
}

// NewProjection creates the memberships projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "memberships" }

func (p *Projection) AggregateTypes() []domain.AggregateType {
	return []domain.AggregateType{
		org.AggregateType,
		project.AggregateType,
		instance.AggregateType,
		user.AggregateType,
	}
}

func (p *Projection) Apply(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	switch event.Type {
	case org.MemberAddedType, org.MemberChangedType:
		return p.upsert(ctx, tx, event, TypeOrg)
	case org.MemberRemovedType:
		return p.remove(ctx, tx, event, TypeOrg)
	case org.RemovedType:
		return p.removeCarrier(ctx, tx, event, TypeOrg)

	case project.MemberAddedType, project.MemberChangedType:
		return p.upsert(ctx, tx, event, TypeProject)
	case project.MemberRemovedType:
		return p.remove(ctx, tx, event, TypeProject)
	case project.RemovedType:
		return p.removeCarrier(ctx, tx, event, TypeProject)

	case instance.MemberAddedType, instance.MemberChangedType:
		return p.upsert(ctx, tx, event, TypeInstance)
	case instance.MemberRemovedType:
		return p.remove(ctx, tx, event, TypeInstance)

	case user.RemovedType:
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_memberships WHERE instance_id = ? AND user_id = ?"),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
	return nil
}

func (p *Projection) upsert(ctx context.Context, tx *sql.Tx, event *domain.Event, memberType string) error {
	var payload memberPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	roles, err := json.Marshal(payload.Roles)
	if err != nil {
		return domain.Internal(err, "encode member roles")
	}
	_, err = tx.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO projections_memberships (
			instance_id, member_type, aggregate_id, user_id, roles,
			creation_date, change_date, sequence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, member_type, aggregate_id, user_id) DO UPDATE SET
			roles = excluded.roles,
			change_date = excluded.change_date,
			sequence = excluded.sequence`),
		event.InstanceID, memberType, event.AggregateID, payload.UserID, string(roles),
		event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
	)
	return err
}

func (p *Projection) remove(ctx context.Context, tx *sql.Tx, event *domain.Event, memberType string) error {
	var payload memberPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, p.db.Rebind(`
		DELETE FROM projections_memberships
		WHERE instance_id = ? AND member_type = ? AND aggregate_id = ? AND user_id = ?`),
		event.InstanceID, memberType, event.AggregateID, payload.UserID,
	)
	return err
}

func (p *Projection) removeCarrier(ctx context.Context, tx *sql.Tx, event *domain.Event, memberType string) error {
	_, err := tx.ExecContext(ctx, p.db.Rebind(`
		DELETE FROM projections_memberships
		WHERE instance_id = ? AND member_type = ? AND aggregate_id = ?`),
		event.InstanceID, memberType, event.AggregateID,
	)
	return err
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_memberships")
	return err
}
