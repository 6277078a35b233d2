// Package eventstore defines the append-only event log: the source of
// truth every other component derives from. Implementations live in
// subpackages; sqlstore covers both sqlite and postgres.
package eventstore

import (
	"context"

	"github.com/identra/identra/pkg/domain"
)

// Intent describes one event to append. The store assigns ID, version,
// position and timestamp at commit time; everything else comes from the
// caller.
type Intent struct {
	// Aggregate the event belongs to.
	Aggregate domain.Aggregate

	// Type of the event, e.g. "user.added".
	Type domain.EventType

	// Payload is marshaled to JSON before the transaction opens. nil
	// means no payload.
	Payload any

	// Creator is the subject causing the event.
	Creator string

	// Revision is the payload schema revision, 1 when unset.
	Revision uint16

	// ExpectedVersion, when non-nil, is the aggregate version the caller
	// observed before producing this event. The push fails with
	// CONCURRENCY_CONFLICT when the stored version disagrees. Only the
	// first intent per aggregate in a push needs it; later ones stack.
	ExpectedVersion *uint64

	// UniqueConstraints are claimed or released atomically with the push.
	UniqueConstraints []*UniqueConstraint
}

// Expect returns a pointer suitable for Intent.ExpectedVersion.
func Expect(version uint64) *uint64 {
	return &version
}

// ConstraintAction says what a push does to a unique constraint.
type ConstraintAction int32

const (
	// ConstraintAdd claims a value; the push fails with ALREADY_EXISTS
	// when the value is taken.
	ConstraintAdd ConstraintAction = iota

	// ConstraintRemove releases a previously claimed value.
	ConstraintRemove
)

// UniqueConstraint reserves a natural key (username, org domain, client
// ID) inside the push transaction. It is the authoritative duplicate
// guard; read-side checks only produce friendlier errors earlier.
type UniqueConstraint struct {
	// IndexName groups values of one kind, e.g. "usernames".
	IndexName string

	// Value is the claimed value. Callers normalize case beforehand when
	// the key is case-insensitive.
	Value string

	Action ConstraintAction
}

// NewAddConstraint claims a value.
func NewAddConstraint(indexName, value string) *UniqueConstraint {
	return &UniqueConstraint{IndexName: indexName, Value: value, Action: ConstraintAdd}
}

// NewRemoveConstraint releases a value.
func NewRemoveConstraint(indexName, value string) *UniqueConstraint {
	return &UniqueConstraint{IndexName: indexName, Value: value, Action: ConstraintRemove}
}

// Filter narrows ReadSince to the event kinds a consumer cares about.
// The zero value matches everything.
type Filter struct {
	AggregateTypes []domain.AggregateType
}

// Store is the event log contract.
type Store interface {
	// Push appends all intents in one transaction: versions are computed
	// per aggregate, a single transaction-wide position is assigned, and
	// unique constraints are applied. The stored events are returned in
	// input order.
	Push(ctx context.Context, intents ...*Intent) ([]*domain.Event, error)

	// ReadAggregate returns all events of one aggregate in ascending
	// version order.
	ReadAggregate(ctx context.Context, instanceID string, aggregateType domain.AggregateType, aggregateID string) ([]*domain.Event, error)

	// ReadSince returns up to limit events strictly after the cursor in
	// global order. Projection workers page the log with it.
	ReadSince(ctx context.Context, after domain.Position, limit int, filter Filter) ([]*domain.Event, error)

	// CurrentPosition returns the highest committed position, zero for
	// an empty log.
	CurrentPosition(ctx context.Context) (domain.Position, error)

	// LatestVersion returns the current version of an aggregate, zero
	// when it has no events.
	LatestVersion(ctx context.Context, instanceID string, aggregateType domain.AggregateType, aggregateID string) (uint64, error)
}

// Notifier learns about committed pushes. Implementations must not block;
// delivery is best effort and exists only to wake projection workers
// before their next poll.
type Notifier interface {
	NotifyPushed(ctx context.Context, events []*domain.Event)
}
