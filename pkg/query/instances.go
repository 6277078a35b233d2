package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Instance is one row of the instances read model.
type Instance struct {
	ID           string
	Name         string
	State        string
	Features     map[string]bool
	Quotas       map[string]int64
	DefaultOrgID string
	CreationDate time.Time
	ChangeDate   time.Time
	Sequence     uint64
}

// Instances reads projections_instances. It implements
// authz.MetadataSource so the builder can attach features and quotas to
// every request context.
type Instances struct {
	db *database.DB
}

// NewInstances creates the instances repository.
func NewInstances(db *database.DB) *Instances {
	return &Instances{db: db}
}

var _ authz.MetadataSource = (*Instances)(nil)

// ByID returns one instance or NOT_FOUND. Instances are global, not
// scoped under another instance.
func (r *Instances) ByID(ctx context.Context, id string) (*Instance, error) {
	stmt := r.db.Rebind(`
		SELECT id, name, state, features, quotas, default_org_id,
			creation_date, change_date, sequence
		FROM projections_instances WHERE id = ?`)
	var (
		instance                Instance
		features, quotas, orgID sql.NullString
		creation, change        int64
	)
	err := r.db.QueryRowContext(ctx, stmt, id).Scan(
		&instance.ID, &instance.Name, &instance.State, &features, &quotas, &orgID,
		&creation, &change, &instance.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("instance %s not found", id))
	}
	if err != nil {
		return nil, domain.Internal(err, "query instance")
	}

	instance.DefaultOrgID = orgID.String
	instance.CreationDate = time.UnixMilli(creation)
	instance.ChangeDate = time.UnixMilli(change)
	if err := decodeDocument(features, &instance.Features); err != nil {
		return nil, domain.Internal(err, "decode instance features")
	}
	if err := decodeDocument(quotas, &instance.Quotas); err != nil {
		return nil, domain.Internal(err, "decode instance quotas")
	}
	return &instance, nil
}

// InstanceMetadata implements authz.MetadataSource. An unknown instance
// yields nil metadata, which leaves the authz gates permissive.
func (r *Instances) InstanceMetadata(ctx context.Context, instanceID string) (*authz.InstanceMetadata, error) {
	instance, err := r.ByID(ctx, instanceID)
	if domain.IsCode(err, domain.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &authz.InstanceMetadata{
		Features: instance.Features,
		Quotas:   instance.Quotas,
	}, nil
}

func decodeDocument[T any](document sql.NullString, into *T) error {
	if document.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(document.String), into)
}
