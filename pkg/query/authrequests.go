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

// AuthRequest is one row of the auth requests read model.
type AuthRequest struct {
	ID           string
	ClientID     string
	UserID       string
	RedirectURI  string
	Scopes       []string
	State        string
	Code         string
	CreationDate time.Time
	ChangeDate   time.Time
	Sequence     uint64
}

// AuthRequests reads projections_auth_requests.
type AuthRequests struct {
	db *database.DB
}

// NewAuthRequests creates the auth requests repository.
func NewAuthRequests(db *database.DB) *AuthRequests {
	return &AuthRequests{db: db}
}

const authRequestColumns = `id, client_id, user_id, redirect_uri, scopes, state, code,
	creation_date, change_date, sequence`

func scanAuthRequest(row rowScanner) (*AuthRequest, error) {
	var (
		a                         AuthRequest
		userID, uri, scopes, code sql.NullString
		creation, change          int64
	)
	err := row.Scan(&a.ID, &a.ClientID, &userID, &uri, &scopes, &a.State, &code,
		&creation, &change, &a.Sequence)
	if err != nil {
		return nil, err
	}
	a.UserID = userID.String
	a.RedirectURI = uri.String
	a.Code = code.String
	a.CreationDate = time.UnixMilli(creation)
	a.ChangeDate = time.UnixMilli(change)
	if scopes.String != "" {
		if err := json.Unmarshal([]byte(scopes.String), &a.Scopes); err != nil {
			return nil, fmt.Errorf("decode scopes: %w", err)
		}
	}
	return &a, nil
}

// ByID returns one auth request or NOT_FOUND.
func (r *AuthRequests) ByID(ctx context.Context, instanceID, id string) (*AuthRequest, error) {
	b := newBuilder(instanceID).equal("id", id)
	return r.one(ctx, b, fmt.Sprintf("auth request %s not found", id))
}

// ByCode resolves an outstanding authorization code. Terminal requests
// no longer carry their code, so an exchanged code is NOT_FOUND.
func (r *AuthRequests) ByCode(ctx context.Context, instanceID, code string) (*AuthRequest, error) {
	b := newBuilder(instanceID).equal("code", code).equal("state", "code_issued")
	return r.one(ctx, b, "authorization code not found")
}

func (r *AuthRequests) one(ctx context.Context, b *builder, notFound string) (*AuthRequest, error) {
	stmt := r.db.Rebind("SELECT " + authRequestColumns + " FROM projections_auth_requests" + b.clause())
	request, err := scanAuthRequest(r.db.QueryRowContext(ctx, stmt, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(notFound)
	}
	if err != nil {
		return nil, domain.Internal(err, "query auth request")
	}
	return request, nil
}
