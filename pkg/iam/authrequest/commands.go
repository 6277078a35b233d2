package authrequest

import (
	"context"
	"fmt"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/validators"
)

// Command kinds of the auth request aggregate.
const (
	KindAdd     = "authrequest.add"
	KindAddCode = "authrequest.code.add"
	KindSucceed = "authrequest.succeed"
	KindFail    = "authrequest.fail"
)

// codeBytes is the entropy of an authorization code.
const codeBytes = 32

// AddCommand records an incoming authorization request.
type AddCommand struct {
	InstanceID  string
	ID          string
	ClientID    string
	RedirectURI string
	Scopes      []string
	LoginHint   string
}

func (c *AddCommand) Kind() string { return KindAdd }

func (c *AddCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *AddCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("clientId", c.ClientID).
		Required("redirectUri", c.RedirectURI).
		Fields()
}

// AddCodeCommand issues the authorization code once the user has
// authenticated. The code itself is generated by the handler.
type AddCodeCommand struct {
	InstanceID string
	ID         string
	UserID     string
}

func (c *AddCodeCommand) Kind() string { return KindAddCode }

func (c *AddCodeCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *AddCodeCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("userId", c.UserID).
		Fields()
}

// SucceedCommand completes the flow after the code exchange.
type SucceedCommand struct {
	InstanceID string
	ID         string
	SessionID  string
}

func (c *SucceedCommand) Kind() string { return KindSucceed }

func (c *SucceedCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *SucceedCommand) validate() []domain.FieldError {
	return new(validators.Result).Required("id", c.ID).Fields()
}

// FailCommand aborts the flow.
type FailCommand struct {
	InstanceID string
	ID         string
	Reason     string
}

func (c *FailCommand) Kind() string { return KindFail }

func (c *FailCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *FailCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("reason", c.Reason).
		Fields()
}

// Register adds the auth request command handlers to the bus.
func Register(bus *command.Bus) {
	command.Register(bus, command.Registration[*AddCommand, *WriteModel]{
		Kind:     KindAdd,
		Validate: (*AddCommand).validate,
		NewModel: func(*AddCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleAdd,
	})
	command.Register(bus, command.Registration[*AddCodeCommand, *WriteModel]{
		Kind:     KindAddCode,
		Validate: (*AddCodeCommand).validate,
		NewModel: func(*AddCodeCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleAddCode,
	})
	command.Register(bus, command.Registration[*SucceedCommand, *WriteModel]{
		Kind:     KindSucceed,
		Validate: (*SucceedCommand).validate,
		NewModel: func(*SucceedCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleSucceed,
	})
	command.Register(bus, command.Registration[*FailCommand, *WriteModel]{
		Kind:     KindFail,
		Validate: (*FailCommand).validate,
		NewModel: func(*FailCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleFail,
	})
}

func handleAdd(ctx context.Context, cmd *AddCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if model.State.Exists() {
		return nil, domain.AlreadyExists(fmt.Sprintf("auth request %s already exists", cmd.ID))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      AddedType,
		Payload: AddedPayload{
			ClientID:    cmd.ClientID,
			RedirectURI: cmd.RedirectURI,
			Scopes:      cmd.Scopes,
			LoginHint:   cmd.LoginHint,
		},
	}}, nil
}

func handleAddCode(ctx context.Context, cmd *AddCodeCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("auth request %s does not exist", cmd.ID))
	}
	if model.State != StateAdded {
		return nil, domain.NotActive(fmt.Sprintf("auth request %s is %s", cmd.ID, model.State))
	}

	code, err := crypto.RandomToken(codeBytes)
	if err != nil {
		return nil, domain.Internal(err, "generate authorization code")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      CodeAddedType,
		Payload:   CodeAddedPayload{UserID: cmd.UserID, Code: code},
		UniqueConstraints: []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint(UniqueCodes, code),
		},
	}}, nil
}

func handleSucceed(ctx context.Context, cmd *SucceedCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("auth request %s does not exist", cmd.ID))
	}
	if model.State != StateCodeIssued {
		return nil, domain.NotActive(fmt.Sprintf("auth request %s is %s", cmd.ID, model.State))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      SucceededType,
		Payload:   SucceededPayload{SessionID: cmd.SessionID},
		UniqueConstraints: []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueCodes, model.Code),
		},
	}}, nil
}

func handleFail(ctx context.Context, cmd *FailCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("auth request %s does not exist", cmd.ID))
	}
	if model.State.Terminal() {
		return nil, domain.NotActive(fmt.Sprintf("auth request %s is %s", cmd.ID, model.State))
	}

	intent := &eventstore.Intent{
		Aggregate: cmd.Aggregate(),
		Type:      FailedType,
		Payload:   FailedPayload{Reason: cmd.Reason},
	}
	if model.State == StateCodeIssued {
		intent.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueCodes, model.Code),
		}
	}
	return []*eventstore.Intent{intent}, nil
}
