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

// User is one row of the users read model.
type User struct {
	ID                string
	ResourceOwner     string
	Username          string
	Email             string
	FirstName         string
	LastName          string
	DisplayName       string
	PreferredLanguage string
	State             string
	PasswordHash      string
	CreationDate      time.Time
	ChangeDate        time.Time
	Sequence          uint64
}

// Address is the postal address attached to a user, nil when never set.
type Address struct {
	Country    string
	Locality   string
	PostalCode string
	Region     string
	Street     string
}

// UserSearch filters the user search. Text fields match as
// case-insensitive substrings, State matches exactly.
type UserSearch struct {
	SearchRequest

	Username      string
	Email         string
	DisplayName   string
	ResourceOwner string
	State         string
}

// Users reads projections_users and its satellite tables. It also
// serves the command side's username and quota probes.
type Users struct {
	db *database.DB
}

// NewUsers creates the users repository.
func NewUsers(db *database.DB) *Users {
	return &Users{db: db}
}

const userColumns = `id, resource_owner, username, email, first_name, last_name,
	display_name, preferred_language, state, password_hash,
	creation_date, change_date, sequence`

var userSortColumns = map[string]string{
	"username":     "username",
	"email":        "email",
	"displayName":  "display_name",
	"state":        "state",
	"creationDate": "creation_date",
	"changeDate":   "change_date",
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                                                           User
		email, firstName, lastName, displayName, language, password sql.NullString
		creation, change                                            int64
	)
	err := row.Scan(&u.ID, &u.ResourceOwner, &u.Username, &email, &firstName, &lastName,
		&displayName, &language, &u.State, &password, &creation, &change, &u.Sequence)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.DisplayName = displayName.String
	u.PreferredLanguage = language.String
	u.PasswordHash = password.String
	u.CreationDate = time.UnixMilli(creation)
	u.ChangeDate = time.UnixMilli(change)
	return &u, nil
}

// ByID returns one user or NOT_FOUND.
func (r *Users) ByID(ctx context.Context, instanceID, id string) (*User, error) {
	return r.one(ctx, newBuilder(instanceID).equal("id", id), fmt.Sprintf("user %s not found", id))
}

// ByUsername resolves the login name, case-insensitively.
func (r *Users) ByUsername(ctx context.Context, instanceID, username string) (*User, error) {
	b := newBuilder(instanceID).equal("LOWER(username)", strings.ToLower(username))
	return r.one(ctx, b, fmt.Sprintf("user %s not found", username))
}

func (r *Users) one(ctx context.Context, b *builder, notFound string) (*User, error) {
	stmt := r.db.Rebind("SELECT " + userColumns + " FROM projections_users" + b.clause())
	user, err := scanUser(r.db.QueryRowContext(ctx, stmt, b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(notFound)
	}
	if err != nil {
		return nil, domain.Internal(err, "query user")
	}
	return user, nil
}

// Search pages through users matching all given filters.
func (r *Users) Search(ctx context.Context, instanceID string, req UserSearch) (*SearchResponse[*User], error) {
	b := newBuilder(instanceID).
		contains("username", req.Username).
		contains("email", req.Email).
		contains("display_name", req.DisplayName).
		equalText("resource_owner", req.ResourceOwner).
		equalText("state", req.State)
	return search(ctx, r.db, "projections_users", userColumns, b,
		req.SearchRequest, userSortColumns, "creation_date", scanUser)
}

// UsernameTaken reports whether a live user holds the username. It
// backs the command side's early duplicate check.
func (r *Users) UsernameTaken(ctx context.Context, instanceID, username string) (bool, error) {
	return r.usernameTaken(ctx, instanceID, username, "")
}

// UsernameTakenExcluding is UsernameTaken minus one user, for rename
// style checks.
func (r *Users) UsernameTakenExcluding(ctx context.Context, instanceID, username, excludeID string) (bool, error) {
	return r.usernameTaken(ctx, instanceID, username, excludeID)
}

func (r *Users) usernameTaken(ctx context.Context, instanceID, username, excludeID string) (bool, error) {
	b := newBuilder(instanceID).equal("LOWER(username)", strings.ToLower(username))
	if excludeID != "" {
		b.where = append(b.where, "id <> ?")
		b.args = append(b.args, excludeID)
	}
	var count int64
	stmt := r.db.Rebind("SELECT COUNT(*) FROM projections_users" + b.clause())
	if err := r.db.QueryRowContext(ctx, stmt, b.args...).Scan(&count); err != nil {
		return false, domain.Internal(err, "check username")
	}
	return count > 0, nil
}

// CountUsers backs the users quota gate.
func (r *Users) CountUsers(ctx context.Context, instanceID string) (int64, error) {
	var count int64
	stmt := r.db.Rebind("SELECT COUNT(*) FROM projections_users WHERE instance_id = ?")
	if err := r.db.QueryRowContext(ctx, stmt, instanceID).Scan(&count); err != nil {
		return 0, domain.Internal(err, "count users")
	}
	return count, nil
}

// Metadata returns all metadata entries of a user. Missing user means
// an empty map, not an error.
func (r *Users) Metadata(ctx context.Context, instanceID, userID string) (map[string]string, error) {
	stmt := r.db.Rebind(`
		SELECT metadata_key, metadata_value FROM projections_user_metadata
		WHERE instance_id = ? AND user_id = ?`)
	rows, err := r.db.QueryContext(ctx, stmt, instanceID, userID)
	if err != nil {
		return nil, domain.Internal(err, "query user metadata")
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, domain.Internal(err, "scan user metadata")
		}
		metadata[key] = value.String
	}
	return metadata, rows.Err()
}

// AddressByUser returns the user's address or NOT_FOUND when none was
// ever set.
func (r *Users) AddressByUser(ctx context.Context, instanceID, userID string) (*Address, error) {
	stmt := r.db.Rebind(`
		SELECT country, locality, postal_code, region, street
		FROM projections_user_addresses WHERE instance_id = ? AND user_id = ?`)
	var country, locality, postalCode, region, street sql.NullString
	err := r.db.QueryRowContext(ctx, stmt, instanceID, userID).
		Scan(&country, &locality, &postalCode, &region, &street)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("no address for user %s", userID))
	}
	if err != nil {
		return nil, domain.Internal(err, "query user address")
	}
	return &Address{
		Country:    country.String,
		Locality:   locality.String,
		PostalCode: postalCode.String,
		Region:     region.String,
		Street:     street.String,
	}, nil
}
