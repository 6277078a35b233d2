package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Membership is one grant of roles to a user on an org, project or the
// instance itself.
type Membership struct {
	MemberType   string
	AggregateID  string
	UserID       string
	Roles        []string
	CreationDate time.Time
	ChangeDate   time.Time
	Sequence     uint64
}

// Memberships reads projections_memberships.
type Memberships struct {
	db *database.DB
}

// NewMemberships creates the memberships repository.
func NewMemberships(db *database.DB) *Memberships {
	return &Memberships{db: db}
}

const membershipColumns = "member_type, aggregate_id, user_id, roles, creation_date, change_date, sequence"

func scanMembership(row rowScanner) (*Membership, error) {
	var (
		m                Membership
		roles            sql.NullString
		creation, change int64
	)
	err := row.Scan(&m.MemberType, &m.AggregateID, &m.UserID, &roles, &creation, &change, &m.Sequence)
	if err != nil {
		return nil, err
	}
	m.CreationDate = time.UnixMilli(creation)
	m.ChangeDate = time.UnixMilli(change)
	if roles.String != "" {
		if err := json.Unmarshal([]byte(roles.String), &m.Roles); err != nil {
			return nil, fmt.Errorf("decode roles: %w", err)
		}
	}
	return &m, nil
}

// ByUser lists everything the user is a member of.
func (r *Memberships) ByUser(ctx context.Context, instanceID, userID string) ([]*Membership, error) {
	b := newBuilder(instanceID).equal("user_id", userID)
	return r.list(ctx, b)
}

// Members lists the memberships of one carrier, for example one org.
func (r *Memberships) Members(ctx context.Context, instanceID, memberType, aggregateID string) ([]*Membership, error) {
	b := newBuilder(instanceID).
		equal("member_type", memberType).
		equal("aggregate_id", aggregateID)
	return r.list(ctx, b)
}

func (r *Memberships) list(ctx context.Context, b *builder) ([]*Membership, error) {
	stmt := r.db.Rebind("SELECT " + membershipColumns + " FROM projections_memberships" +
		b.clause() + " ORDER BY member_type, aggregate_id, user_id")
	rows, err := r.db.QueryContext(ctx, stmt, b.args...)
	if err != nil {
		return nil, domain.Internal(err, "query memberships")
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, domain.Internal(err, "scan membership")
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}
