package projection

import (
	"context"
	"time"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
)

// LockStore guarantees exactly one active worker per projection via a
// row in projection_locks. Locks expire after their TTL so a crashed
// holder never blocks a projection forever.
type LockStore struct {
	db *database.DB
}

// NewLockStore creates a lock store on an open database.
func NewLockStore(db *database.DB) *LockStore {
	return &LockStore{db: db}
}

// The upsert takes the row when it is free, expired, or already ours.
// The WHERE clause leaves foreign live locks untouched, which shows up
// as zero affected rows.
const acquireLockQuery = `
	INSERT INTO projection_locks (name, owner, expires_at)
	VALUES (?, ?, ?)
	ON CONFLICT (name) DO UPDATE SET
		owner = excluded.owner,
		expires_at = excluded.expires_at
	WHERE projection_locks.owner = excluded.owner
		OR projection_locks.expires_at < ?`

// Acquire tries to take the lock for owner with the given TTL. It
// returns false when another live owner holds it.
func (l *LockStore) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	result, err := l.db.ExecContext(ctx, l.db.Rebind(acquireLockQuery),
		name, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, domain.RetryableInternal(err, "acquire projection lock")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, domain.Internal(err, "acquire projection lock")
	}
	return affected > 0, nil
}

// Renew extends the TTL of a lock the owner already holds. Holders renew
// at half TTL during long drains.
func (l *LockStore) Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		l.db.Rebind("UPDATE projection_locks SET expires_at = ? WHERE name = ? AND owner = ?"),
		time.Now().Add(ttl).UnixMilli(), name, owner)
	if err != nil {
		return false, domain.RetryableInternal(err, "renew projection lock")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, domain.Internal(err, "renew projection lock")
	}
	return affected > 0, nil
}

// Release drops the lock if owner still holds it. Releasing a lock taken
// over by someone else is a no-op.
func (l *LockStore) Release(ctx context.Context, name, owner string) error {
	_, err := l.db.ExecContext(ctx,
		l.db.Rebind("DELETE FROM projection_locks WHERE name = ? AND owner = ?"),
		name, owner)
	if err != nil {
		return domain.RetryableInternal(err, "release projection lock")
	}
	return nil
}
