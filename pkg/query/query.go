// Package query exposes the read side: thin repositories over the
// projection tables. Repositories never touch the event log; they see
// whatever the projection workers have applied so far.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// Pagination bounds. A zero limit gets the default, anything above the
// maximum is clamped.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// SearchRequest is the shared paging and sorting part of every search.
// SortBy must be one of the repository's whitelisted columns.
type SearchRequest struct {
	Offset    uint64
	Limit     uint64
	SortBy    string
	Ascending bool
}

func (r SearchRequest) limit() uint64 {
	switch {
	case r.Limit == 0:
		return DefaultLimit
	case r.Limit > MaxLimit:
		return MaxLimit
	default:
		return r.Limit
	}
}

// SearchResponse is one page of results plus the unpaged total.
type SearchResponse[T any] struct {
	Items  []T
	Total  uint64
	Offset uint64
	Limit  uint64
}

// builder accumulates AND conditions for one statement. instance_id is
// always the first condition; repositories add the rest.
type builder struct {
	where []string
	args  []any
}

func newBuilder(instanceID string) *builder {
	b := &builder{}
	b.equal("instance_id", instanceID)
	return b
}

func (b *builder) equal(column string, value any) *builder {
	b.where = append(b.where, column+" = ?")
	b.args = append(b.args, value)
	return b
}

// equalText adds a condition only when value is non-empty.
func (b *builder) equalText(column, value string) *builder {
	if value != "" {
		b.equal(column, value)
	}
	return b
}

// contains adds a case-insensitive substring condition when value is
// non-empty.
func (b *builder) contains(column, value string) *builder {
	if value == "" {
		return b
	}
	b.where = append(b.where, "LOWER("+column+") LIKE ?")
	b.args = append(b.args, "%"+strings.ToLower(value)+"%")
	return b
}

func (b *builder) clause() string {
	return " WHERE " + strings.Join(b.where, " AND ")
}

// orderBy resolves the requested sort against the whitelist. An unknown
// column is a validation error, not an injection vector.
func orderBy(req SearchRequest, columns map[string]string, fallback string) (string, error) {
	column := fallback
	if req.SortBy != "" {
		mapped, ok := columns[req.SortBy]
		if !ok {
			return "", domain.ValidationFailed(
				fmt.Sprintf("cannot sort by %q", req.SortBy),
				domain.FieldError{Field: "sortBy", Code: "invalid"})
		}
		column = mapped
	}
	direction := " DESC"
	if req.Ascending {
		direction = " ASC"
	}
	return " ORDER BY " + column + direction, nil
}

// search runs the count and page queries for one repository. scan reads
// a single row into an item.
func search[T any](ctx context.Context, db *database.DB, table, columns string,
	b *builder, req SearchRequest, sortColumns map[string]string, defaultSort string,
	scan func(rows rowScanner) (T, error),
) (*SearchResponse[T], error) {
	order, err := orderBy(req, sortColumns, defaultSort)
	if err != nil {
		return nil, err
	}

	var total uint64
	countStmt := db.Rebind("SELECT COUNT(*) FROM " + table + b.clause())
	if err := db.QueryRowContext(ctx, countStmt, b.args...).Scan(&total); err != nil {
		return nil, domain.Internal(err, "count "+table)
	}

	limit := req.limit()
	stmt := db.Rebind("SELECT " + columns + " FROM " + table + b.clause() + order + " LIMIT ? OFFSET ?")
	rows, err := db.QueryContext(ctx, stmt, append(b.args, limit, req.Offset)...)
	if err != nil {
		return nil, domain.Internal(err, "search "+table)
	}
	defer rows.Close()

	items := make([]T, 0, limit)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, domain.Internal(err, "scan "+table)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "search "+table)
	}

	return &SearchResponse[T]{Items: items, Total: total, Offset: req.Offset, Limit: limit}, nil
}

// rowScanner is the part of *sql.Rows the scan callbacks need.
type rowScanner interface {
	Scan(dest ...any) error
}
