package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Projection materializes projections_users.
type Projection struct {
	db *database.DB
}

// NewProjection creates the users projection handler.
func NewProjection(db *database.DB) *Projection {
	return &Projection{db: db}
}

func (p *Projection) Name() string { return "users" }

func (p *Projection) AggregateTypes() []domain.AggregateType {
	return []domain.AggregateType{AggregateType}
}

func (p *Projection) Apply(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	switch event.Type {
	case CreatedType:
		var payload CreatedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			INSERT INTO projections_users (
				instance_id, id, resource_owner, username, email, first_name,
				last_name, display_name, preferred_language, state,
				password_hash, creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, id) DO NOTHING`),
			event.InstanceID, event.AggregateID, event.Owner,
			payload.Username, payload.Email, payload.FirstName,
			payload.LastName, payload.DisplayName, payload.PreferredLanguage,
			domain.StateActive.String(), payload.PasswordHash,
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case UpdatedType:
		var payload UpdatedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		sets := []string{"change_date = ?", "sequence = ?"}
		args := []any{event.CreatedAt.UnixMilli(), event.AggregateVersion}
		for column, value := range map[string]*string{
			"email":              payload.Email,
			"first_name":         payload.FirstName,
			"last_name":          payload.LastName,
			"display_name":       payload.DisplayName,
			"preferred_language": payload.PreferredLanguage,
		} {
			if value != nil {
				sets = append(sets, column+" = ?")
				args = append(args, *value)
			}
		}
		args = append(args, event.InstanceID, event.AggregateID)
		query := fmt.Sprintf(
			"UPDATE projections_users SET %s WHERE instance_id = ? AND id = ?",
			strings.Join(sets, ", "),
		)
		_, err := tx.ExecContext(ctx, p.db.Rebind(query), args...)
		return err

	case DeactivatedType:
		return p.setState(ctx, tx, event, domain.StateInactive)
	case ReactivatedType, UnlockedType:
		return p.setState(ctx, tx, event, domain.StateActive)
	case LockedType:
		return p.setState(ctx, tx, event, domain.StateLocked)

	case PasswordChangedType:
		var payload PasswordChangedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			UPDATE projections_users SET password_hash = ?, change_date = ?, sequence = ?
			WHERE instance_id = ? AND id = ?`),
			payload.PasswordHash, event.CreatedAt.UnixMilli(), event.AggregateVersion,
			event.InstanceID, event.AggregateID,
		)
		return err

	case RemovedType:
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_users WHERE instance_id = ? AND id = ?"),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
	return nil
}

func (p *Projection) setState(ctx context.Context, tx *sql.Tx, event *domain.Event, state domain.AggregateState) error {
	_, err := tx.ExecContext(ctx, p.db.Rebind(`
		UPDATE projections_users SET state = ?, change_date = ?, sequence = ?
		WHERE instance_id = ? AND id = ?`),
		state.String(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		event.InstanceID, event.AggregateID,
	)
	return err
}

func (p *Projection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_users")
	return err
}

// MetadataProjection materializes projections_user_metadata. It runs as
// its own worker so a metadata burst cannot stall the profile table.
type MetadataProjection struct {
	db *database.DB
}

// NewMetadataProjection creates the user metadata projection handler.
func NewMetadataProjection(db *database.DB) *MetadataProjection {
	return &MetadataProjection{db: db}
}

func (p *MetadataProjection) Name() string { return "user_metadata" }

func (p *MetadataProjection) AggregateTypes() []domain.AggregateType {
	return []domain.AggregateType{AggregateType}
}

func (p *MetadataProjection) Apply(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	switch event.Type {
	case MetadataSetType:
		var payload MetadataSetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			INSERT INTO projections_user_metadata (
				instance_id, user_id, metadata_key, metadata_value,
				creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, user_id, metadata_key) DO UPDATE SET
				metadata_value = excluded.metadata_value,
				change_date = excluded.change_date,
				sequence = excluded.sequence`),
			event.InstanceID, event.AggregateID, payload.Key, payload.Value,
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case MetadataRemovedType:
		var payload MetadataRemovedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			DELETE FROM projections_user_metadata
			WHERE instance_id = ? AND user_id = ? AND metadata_key = ?`),
			event.InstanceID, event.AggregateID, payload.Key,
		)
		return err

	case RemovedType:
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_user_metadata WHERE instance_id = ? AND user_id = ?"),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
	return nil
}

func (p *MetadataProjection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_user_metadata")
	return err
}

// AddressProjection materializes projections_user_addresses.
type AddressProjection struct {
	db *database.DB
}

// NewAddressProjection creates the user addresses projection handler.
func NewAddressProjection(db *database.DB) *AddressProjection {
	return &AddressProjection{db: db}
}

func (p *AddressProjection) Name() string { return "user_addresses" }

func (p *AddressProjection) AggregateTypes() []domain.AggregateType {
	return []domain.AggregateType{AggregateType}
}

func (p *AddressProjection) Apply(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	switch event.Type {
	case AddressSetType:
		var payload AddressSetPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, p.db.Rebind(`
			INSERT INTO projections_user_addresses (
				instance_id, user_id, country, locality, postal_code, region,
				street, creation_date, change_date, sequence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, user_id) DO UPDATE SET
				country = excluded.country,
				locality = excluded.locality,
				postal_code = excluded.postal_code,
				region = excluded.region,
				street = excluded.street,
				change_date = excluded.change_date,
				sequence = excluded.sequence`),
			event.InstanceID, event.AggregateID,
			payload.Country, payload.Locality, payload.PostalCode, payload.Region, payload.Street,
			event.CreatedAt.UnixMilli(), event.CreatedAt.UnixMilli(), event.AggregateVersion,
		)
		return err

	case RemovedType:
		_, err := tx.ExecContext(ctx, p.db.Rebind(
			"DELETE FROM projections_user_addresses WHERE instance_id = ? AND user_id = ?"),
			event.InstanceID, event.AggregateID,
		)
		return err
	}
	return nil
}

func (p *AddressProjection) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM projections_user_addresses")
	return err
}
