// Package command turns typed commands into events: lookup by kind,
// input validation, state reconstruction from the event log, business
// rules in the handler, and a version-checked append. Middleware wraps
// the whole pipeline for cross-cutting concerns.
package command

import (
	"context"

	"github.com/identra/identra/pkg/domain"
)

// Command is an intention to change one aggregate.
type Command interface {
	// Kind is the registration key, e.g. "user.create".
	Kind() string

	// Aggregate returns the coordinates of the aggregate the command
	// targets. State is always folded from this aggregate's events;
	// handlers must not read their own aggregate from projections.
	Aggregate() domain.Aggregate
}

// Model is the write-side state a handler decides on. Concrete models
// embed domain.WriteModel and extend Reduce.
type Model interface {
	Reduce(event *domain.Event)
	Version() uint64
}

// Result is the outcome of a successfully executed command.
type Result struct {
	// AggregateID of the targeted aggregate.
	AggregateID string

	// Events as stored, with assigned versions and positions.
	Events []*domain.Event
}

// HandlerFunc executes one command end to end. Middleware wraps it.
type HandlerFunc func(ctx context.Context, cmd Command) (*Result, error)

// Middleware wraps command execution with a cross-cutting concern. The
// first middleware added to a bus is the outermost.
type Middleware func(next HandlerFunc) HandlerFunc
