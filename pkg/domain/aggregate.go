package domain

// Aggregate identifies a consistency boundary. State of an aggregate is
// the fold of its ordered events; two aggregates are the same iff all
// three coordinates match.
type Aggregate struct {
	// ID is the aggregate identifier, unique within Type and InstanceID.
	ID string

	// Type is the kind of aggregate.
	Type AggregateType

	// InstanceID is the multi-tenant boundary.
	InstanceID string

	// Owner is the resource owner of the aggregate within the instance.
	Owner string
}

// NewAggregate builds an aggregate descriptor. When owner is empty the
// aggregate owns itself (the usual case for orgs and instances).
func NewAggregate(id string, typ AggregateType, instanceID, owner string) Aggregate {
	if owner == "" {
		owner = id
	}
	return Aggregate{
		ID:         id,
		Type:       typ,
		InstanceID: instanceID,
		Owner:      owner,
	}
}

// AggregateState is the lifecycle state shared by all aggregates.
type AggregateState int32

const (
	StateUnspecified AggregateState = iota
	StateActive
	StateInactive
	StateLocked
	StateDeleted
)

var stateNames = map[AggregateState]string{
	StateUnspecified: "unspecified",
	StateActive:      "active",
	StateInactive:    "inactive",
	StateLocked:      "locked",
	StateDeleted:     "deleted",
}

func (s AggregateState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unspecified"
}

// Exists reports whether the aggregate is present in the system at all.
// Deleted aggregates keep their events but no longer exist.
func (s AggregateState) Exists() bool {
	return s != StateUnspecified && s != StateDeleted
}

// ParseAggregateState is the inverse of String. Unknown names map to
// StateUnspecified.
func ParseAggregateState(name string) AggregateState {
	for state, n := range stateNames {
		if n == name {
			return state
		}
	}
	return StateUnspecified
}
