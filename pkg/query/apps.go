package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// App is one row of the apps read model.
type App struct {
	ID            string
	ProjectID     string
	ResourceOwner string
	Name          string
	ClientID      string
	RedirectURIs  []string
	AuthMethod    string
	State         string
	CreationDate  time.Time
	ChangeDate    time.Time
	Sequence      uint64
}

// AppSearch filters the app search.
type AppSearch struct {
	SearchRequest

	Name      string
	ProjectID string
	State     string
}

// Apps reads projections_apps.
type Apps struct {
	db *database.DB
}

// NewApps creates the apps repository.
func NewApps(db *database.DB) *Apps {
	return &Apps{db: db}
}

const appColumns = `id, project_id, resource_owner, name, client_id, redirect_uris,
	auth_method, state, creation_date, change_date, sequence`

var appSortColumns = map[string]string{
	"name":         "name",
	"state":        "state",
	"creationDate": "creation_date",
	"changeDate":   "change_date",
}

func scanApp(row rowScanner) (*App, error) {
	var (
		a                      App
		clientID, uris, method sql.NullString
		creation, change       int64
	)
	err := row.Scan(&a.ID, &a.ProjectID, &a.ResourceOwner, &a.Name, &clientID, &uris,
		&method, &a.State, &creation, &change, &a.Sequence)
	if err != nil {
		return nil, err
	}
	a.ClientID = clientID.String
	a.AuthMethod = method.String
	a.CreationDate = time.UnixMilli(creation)
	a.ChangeDate = time.UnixMilli(change)
	if uris.String != "" {
		if err := json.Unmarshal([]byte(uris.String), &a.RedirectURIs); err != nil {
			return nil, fmt.Errorf("decode redirect uris: %w", err)
		}
	}
	return &a, nil
}

// ByID returns one app or NOT_FOUND.
func (r *Apps) ByID(ctx context.Context, instanceID, id string) (*App, error) {
	return r.one(ctx, newBuilder(instanceID).equal("id", id), fmt.Sprintf("app %s not found", id))
}

// ByClientID resolves the OAuth client identifier, NOT_FOUND otherwise.
func (r *Apps) ByClientID(ctx context.Context, instanceID, clientID string) (*App, error) {
	b := newBuilder(instanceID).equal("client_id", clientID)
	return r.one(ctx, b, fmt.Sprintf("client %s not found", clientID))
}

func (r *Apps) one(ctx context.Context, b *builder, notFound string) (*App, error) {
	stmt := r.db.Rebind("SELECT " + appColumns + " FROM projections_apps" + b.clause())
	app, err := scanApp(r.db.QueryRowContext(ctx, stmt, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(notFound)
	}
	if err != nil {
		return nil, domain.Internal(err, "query app")
	}
	return app, nil
}

// Search pages through apps matching all given filters.
func (r *Apps) Search(ctx context.Context, instanceID string, req AppSearch) (*SearchResponse[*App], error) {
	b := newBuilder(instanceID).
		contains("name", req.Name).
		equalText("project_id", req.ProjectID).
		equalText("state", req.State)
	return search(ctx, r.db, "projections_apps", appColumns, b,
		req.SearchRequest, appSortColumns, "creation_date", scanApp)
}
