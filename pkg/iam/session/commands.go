package session

import (
	"context"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/validators"
)

// Command kinds of the session aggregate.
const (
	KindAdd       = "session.add"
	KindTerminate = "session.terminate"
)

// DefaultLifetime applies when AddCommand carries no lifetime.
const DefaultLifetime = 24 * time.Hour

// AddCommand starts a session for a user.
type AddCommand struct {
	InstanceID string
	ID         string
	UserID     string
	UserAgent  string

	// Lifetime until expiry, DefaultLifetime when zero.
	Lifetime time.Duration
}

func (c *AddCommand) Kind() string { return KindAdd }

func (c *AddCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *AddCommand) validate() []domain.FieldError {
	result := new(validators.Result).
		Required("id", c.ID).
		Required("userId", c.UserID)
	if c.Lifetime < 0 {
		result.Add("lifetime", validators.CodeInvalid, "must not be negative")
	}
	return result.Fields()
}

// TerminateCommand ends a session. Terminating twice fails with
// NOT_ACTIVE.
type TerminateCommand struct {
	InstanceID string
	ID         string
	Reason     string
}

func (c *TerminateCommand) Kind() string { return KindTerminate }

func (c *TerminateCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *TerminateCommand) validate() []domain.FieldError {
	return new(validators.Result).Required("id", c.ID).Fields()
}

// Config wires the session command handlers.
type Config struct {
	// Now is the clock, time.Now when nil. Tests inject a fixed one.
	Now func() time.Time
}

// Register adds the session command handlers to the bus.
func Register(bus *command.Bus, cfg Config) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	command.Register(bus, command.Registration[*AddCommand, *WriteModel]{
		Kind:     KindAdd,
		Validate: (*AddCommand).validate,
		NewModel: func(*AddCommand) *WriteModel { return NewWriteModel() },
		Handle:   cfg.handleAdd,
	})
	command.Register(bus, command.Registration[*TerminateCommand, *WriteModel]{
		Kind:     KindTerminate,
		Validate: (*TerminateCommand).validate,
		NewModel: func(*TerminateCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleTerminate,
	})
}

func (cfg Config) handleAdd(ctx context.Context, cmd *AddCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if model.State.Exists() {
		return nil, domain.AlreadyExists(fmt.Sprintf("session %s already exists", cmd.ID))
	}

	lifetime := cmd.Lifetime
	if lifetime == 0 {
		lifetime = DefaultLifetime
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      AddedType,
		Payload: AddedPayload{
			UserID:    cmd.UserID,
			UserAgent: cmd.UserAgent,
			ExpiresAt: cfg.Now().Add(lifetime).UTC(),
		},
	}}, nil
}

func handleTerminate(ctx context.Context, cmd *TerminateCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("session %s does not exist", cmd.ID))
	}
	if model.State == StateTerminated {
		return nil, domain.NotActive(fmt.Sprintf("session %s is already terminated", cmd.ID))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      TerminatedType,
		Payload:   TerminatedPayload{Reason: cmd.Reason},
	}}, nil
}
