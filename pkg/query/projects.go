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

// Project is one row of the projects read model.
type Project struct {
	ID            string
	ResourceOwner string
	Name          string
	State         string
	CreationDate  time.Time
	ChangeDate    time.Time
	Sequence      uint64
}

// ProjectSearch filters the project search.
type ProjectSearch struct {
	SearchRequest

	Name          string
	ResourceOwner string
	State         string
}

// Projects reads projections_projects.
type Projects struct {
	db *database.DB
}

// NewProjects creates the projects repository.
func NewProjects(db *database.DB) *Projects {
	return &Projects{db: db}
}

const projectColumns = "id, resource_owner, name, state, creation_date, change_date, sequence"

var projectSortColumns = map[string]string{
	"name":         "name",
	"state":        "state",
	"creationDate": "creation_date",
	"changeDate":   "change_date",
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p                Project
		creation, change int64
	)
	if err := row.Scan(&p.ID, &p.ResourceOwner, &p.Name, &p.State, &creation, &change, &p.Sequence); err != nil {
		return nil, err
	}
	p.CreationDate = time.UnixMilli(creation)
	p.ChangeDate = time.UnixMilli(change)
	return &p, nil
}

// ByID returns one project or NOT_FOUND.
func (r *Projects) ByID(ctx context.Context, instanceID, id string) (*Project, error) {
	b := newBuilder(instanceID).equal("id", id)
	stmt := r.db.Rebind("SELECT " + projectColumns + " FROM projections_projects" + b.clause())
	project, err := scanProject(r.db.QueryRowContext(ctx, stmt, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("project %s not found", id))
	}
	if err != nil {
		return nil, domain.Internal(err, "query project")
	}
	return project, nil
}

// Search pages through projects matching all given filters.
func (r *Projects) Search(ctx context.Context, instanceID string, req ProjectSearch) (*SearchResponse[*Project], error) {
	b := newBuilder(instanceID).
		contains("name", req.Name).
		equalText("resource_owner", req.ResourceOwner).
		equalText("state", req.State)
	return search(ctx, r.db, "projections_projects", projectColumns, b,
		req.SearchRequest, projectSortColumns, "creation_date", scanProject)
}

// NameTaken reports whether the owning org already has a project with
// this name. Project names are only unique within their org.
func (r *Projects) NameTaken(ctx context.Context, instanceID, resourceOwner, name, excludeID string) (bool, error) {
	b := newBuilder(instanceID).
		equal("resource_owner", resourceOwner).
		equal("LOWER(name)", strings.ToLower(name))
	if excludeID != "" {
		b.where = append(b.where, "id <> ?")
		b.args = append(b.args, excludeID)
	}
	var count int64
	stmt := r.db.Rebind("SELECT COUNT(*) FROM projections_projects" + b.clause())
	if err := r.db.QueryRowContext(ctx, stmt, b.args...).Scan(&count); err != nil {
		return false, domain.Internal(err, "check project name")
	}
	return count > 0, nil
}
