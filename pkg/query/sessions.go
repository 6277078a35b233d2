package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Session is one row of the sessions read model.
type Session struct {
	ID           string
	UserID       string
	UserAgent    string
	State        string
	Expiration   time.Time
	CreationDate time.Time
	ChangeDate   time.Time
	Sequence     uint64
}

// SessionSearch filters the session search.
type SessionSearch struct {
	SearchRequest

	UserID string
	State  string
}

// Sessions reads projections_sessions.
type Sessions struct {
	db *database.DB
}

// NewSessions creates the sessions repository.
func NewSessions(db *database.DB) *Sessions {
	return &Sessions{db: db}
}

const sessionColumns = "id, user_id, user_agent, state, expiration, creation_date, change_date, sequence"

var sessionSortColumns = map[string]string{
	"state":        "state",
	"expiration":   "expiration",
	"creationDate": "creation_date",
	"changeDate":   "change_date",
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                 Session
		userID, userAgent sql.NullString
		expiration        sql.NullInt64
		creation, change  int64
	)
	err := row.Scan(&s.ID, &userID, &userAgent, &s.State, &expiration, &creation, &change, &s.Sequence)
	if err != nil {
		return nil, err
	}
	s.UserID = userID.String
	s.UserAgent = userAgent.String
	if expiration.Valid {
		s.Expiration = time.UnixMilli(expiration.Int64)
	}
	s.CreationDate = time.UnixMilli(creation)
	s.ChangeDate = time.UnixMilli(change)
	return &s, nil
}

// ByID returns one session or NOT_FOUND.
func (r *Sessions) ByID(ctx context.Context, instanceID, id string) (*Session, error) {
	b := newBuilder(instanceID).equal("id", id)
	stmt := r.db.Rebind("SELECT " + sessionColumns + " FROM projections_sessions" + b.clause())
	session, err := scanSession(r.db.QueryRowContext(ctx, stmt, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, domain.Internal(err, "query session")
	}
	return session, nil
}

// Search pages through sessions matching all given filters.
func (r *Sessions) Search(ctx context.Context, instanceID string, req SessionSearch) (*SearchResponse[*Session], error) {
	b := newBuilder(instanceID).
		equalText("user_id", req.UserID).
		equalText("state", req.State)
	return search(ctx, r.db, "projections_sessions", sessionColumns, b,
		req.SearchRequest, sessionSortColumns, "creation_date", scanSession)
}
