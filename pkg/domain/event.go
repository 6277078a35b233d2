package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AggregateType names a kind of aggregate (e.g. "user", "org").
type AggregateType string

// EventType names a kind of event (e.g. "user.added").
type EventType string

// Position is a point in the global ordering of the event log.
// Events committed in the same transaction share Position and are
// disambiguated by InPositionOrder.
type Position struct {
	Position        int64
	InPositionOrder int32
}

// Compare returns -1, 0 or 1 depending on whether p sorts before,
// equal to or after other.
func (p Position) Compare(other Position) int {
	switch {
	case p.Position < other.Position:
		return -1
	case p.Position > other.Position:
		return 1
	case p.InPositionOrder < other.InPositionOrder:
		return -1
	case p.InPositionOrder > other.InPositionOrder:
		return 1
	default:
		return 0
	}
}

// After reports whether p sorts strictly after other.
func (p Position) After(other Position) bool {
	return p.Compare(other) > 0
}

// IsZero reports whether p is the zero position (before the first event).
func (p Position) IsZero() bool {
	return p.Position == 0 && p.InPositionOrder == 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d.%d", p.Position, p.InPositionOrder)
}

// Event is an immutable fact recording that something happened to an
// aggregate. Events are created exclusively by the command pipeline and
// are never mutated or deleted.
type Event struct {
	// ID is the unique identifier of this event (lexicographically sortable).
	ID string

	// InstanceID is the multi-tenant boundary the event belongs to.
	InstanceID string

	// AggregateType is the kind of aggregate the event belongs to.
	AggregateType AggregateType

	// AggregateID identifies the aggregate within its type and instance.
	AggregateID string

	// AggregateVersion is the version of the aggregate after this event.
	// Versions are 1-based and contiguous per aggregate.
	AggregateVersion uint64

	// Type is the kind of event.
	Type EventType

	// Payload is the JSON document describing the change. Consumers must
	// ignore unknown fields.
	Payload []byte

	// Creator is the subject (user or service) that caused the event.
	Creator string

	// Owner is the resource owner (usually an org ID) of the aggregate.
	Owner string

	// Position is the global ordinal assigned at commit time. All events
	// of one push share it.
	Position int64

	// InPositionOrder orders events within the same position.
	InPositionOrder int32

	// CreatedAt is the commit timestamp.
	CreatedAt time.Time

	// Revision is the payload schema revision of Type.
	Revision uint16
}

// GlobalPosition returns the event's place in the total log order.
func (e *Event) GlobalPosition() Position {
	return Position{Position: e.Position, InPositionOrder: e.InPositionOrder}
}

// UnmarshalPayload decodes the event payload into v. Unknown fields in the
// payload are ignored so that newer revisions remain readable.
func (e *Event) UnmarshalPayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return Internal(err, fmt.Sprintf("malformed payload for event %q", e.Type))
	}
	return nil
}

// MarshalPayload encodes an event payload document.
func MarshalPayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, Internal(err, "marshal event payload")
	}
	return data, nil
}
