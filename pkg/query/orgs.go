package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Org is one row of the orgs read model.
type Org struct {
	ID            string
	Name          string
	PrimaryDomain string
	State         string
	CreationDate  time.Time
	ChangeDate    time.Time
	Sequence      uint64
}

// OrgDomain is one domain claimed by an org.
type OrgDomain struct {
	OrgID      string
	Domain     string
	IsPrimary  bool
	IsVerified bool
}

// OrgSearch filters the org search.
type OrgSearch struct {
	SearchRequest

	Name  string
	State string
}

// Orgs reads projections_orgs and projections_org_domains.
type Orgs struct {
	db *database.DB
}

// NewOrgs creates the orgs repository.
func NewOrgs(db *database.DB) *Orgs {
	return &Orgs{db: db}
}

const orgColumns = "id, name, primary_domain, state, creation_date, change_date, sequence"

var orgSortColumns = map[string]string{
	"name":         "name",
	"state":        "state",
	"creationDate": "creation_date",
	"changeDate":   "change_date",
}

func scanOrg(row rowScanner) (*Org, error) {
	var (
		o                Org
		primaryDomain    sql.NullString
		creation, change int64
	)
	if err := row.Scan(&o.ID, &o.Name, &primaryDomain, &o.State, &creation, &change, &o.Sequence); err != nil {
		return nil, err
	}
	o.PrimaryDomain = primaryDomain.String
	o.CreationDate = time.UnixMilli(creation)
	o.ChangeDate = time.UnixMilli(change)
	return &o, nil
}

// ByID returns one org or NOT_FOUND.
func (r *Orgs) ByID(ctx context.Context, instanceID, id string) (*Org, error) {
	b := newBuilder(instanceID).equal("id", id)
	stmt := r.db.Rebind("SELECT " + orgColumns + " FROM projections_orgs" + b.clause())
	org, err := scanOrg(r.db.QueryRowContext(ctx, stmt, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("org %s not found", id))
	}
	if err != nil {
		return nil, domain.Internal(err, "query org")
	}
	return org, nil
}

// ByDomain resolves a claimed domain to its org, NOT_FOUND otherwise.
func (r *Orgs) ByDomain(ctx context.Context, instanceID, domainName string) (*Org, error) {
	stmt := r.db.Rebind(`
		SELECT org_id FROM projections_org_domains
		WHERE instance_id = ? AND domain = ?`)
	var orgID string
	err := r.db.QueryRowContext(ctx, stmt, instanceID, strings.ToLower(domainName)).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("domain %s not claimed", domainName))
	}
	if err != nil {
		return nil, domain.Internal(err, "query org domain")
	}
	return r.ByID(ctx, instanceID, orgID)
}

// Search pages through orgs matching all given filters.
func (r *Orgs) Search(ctx context.Context, instanceID string, req OrgSearch) (*SearchResponse[*Org], error) {
	b := newBuilder(instanceID).
		contains("name", req.Name).
		equalText("state", req.State)
	return search(ctx, r.db, "projections_orgs", orgColumns, b,
		req.SearchRequest, orgSortColumns, "creation_date", scanOrg)
}

// Domains lists the domains of one org, primary first.
func (r *Orgs) Domains(ctx context.Context, instanceID, orgID string) ([]*OrgDomain, error) {
	stmt := r.db.Rebind(`
		SELECT org_id, domain, is_primary, is_verified FROM projections_org_domains
		WHERE instance_id = ? AND org_id = ?
		ORDER BY is_primary DESC, domain`)
	rows, err := r.db.QueryContext(ctx, stmt, instanceID, orgID)
	if err != nil {
		return nil, domain.Internal(err, "query org domains")
	}
	defer rows.Close()

	var domains []*OrgDomain
	for rows.Next() {
		var d OrgDomain
		if err := rows.Scan(&d.OrgID, &d.Domain, &d.IsPrimary, &d.IsVerified); err != nil {
			return nil, domain.Internal(err, "scan org domain")
		}
		domains = append(domains, &d)
	}
	return domains, rows.Err()
}

// NameTaken reports whether another org already uses the name.
func (r *Orgs) NameTaken(ctx context.Context, instanceID, name, excludeID string) (bool, error) {
	b := newBuilder(instanceID).equal("LOWER(name)", strings.ToLower(name))
	if excludeID != "" {
		b.where = append(b.where, "id <> ?")
		b.args = append(b.args, excludeID)
	}
	var count int64
	stmt := r.db.Rebind("SELECT COUNT(*) FROM projections_orgs" + b.clause())
	if err := r.db.QueryRowContext(ctx, stmt, b.args...).Scan(&count); err != nil {
		return false, domain.Internal(err, "check org name")
	}
	return count > 0, nil
}
