package app

import (
	"context"
	"fmt"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/idgen"
)

// Config wires the app command handlers.
type Config struct {
	// IDs generates client IDs when the command leaves ClientID empty.
	// Required.
	IDs *idgen.Snowflake
}

// Register adds all app command handlers to the bus.
func Register(bus *command.Bus, cfg Config) {
	if cfg.IDs == nil {
		panic("app: Register requires an ID generator")
	}

	command.Register(bus, command.Registration[*AddCommand, *WriteModel]{
		Kind:     KindAdd,
		Validate: (*AddCommand).validate,
		NewModel: func(*AddCommand) *WriteModel { return NewWriteModel() },
		Handle:   cfg.handleAdd,
	})
	command.Register(bus, command.Registration[*ChangeCommand, *WriteModel]{
		Kind:     KindChange,
		Validate: (*ChangeCommand).validate,
		NewModel: func(*ChangeCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleChange,
	})
	for _, kind := range []string{KindDeactivate, KindReactivate, KindRemove} {
		command.Register(bus, command.Registration[*LifecycleCommand, *WriteModel]{
			Kind:     kind,
			Validate: (*LifecycleCommand).validate,
			NewModel: func(*LifecycleCommand) *WriteModel { return NewWriteModel() },
			Handle:   handleLifecycle,
		})
	}
}

func (cfg Config) handleAdd(ctx context.Context, cmd *AddCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if model.State.Exists() {
		return nil, domain.AlreadyExists(fmt.Sprintf("app %s already exists", cmd.ID))
	}

	clientID := cmd.ClientID
	if clientID == "" {
		// ZITADEL-style "<number>@<project>" so the project is readable
		// from the credential.
		clientID = cfg.IDs.NextString() + "@" + cmd.ProjectID
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      AddedType,
		Payload: AddedPayload{
			ProjectID:    cmd.ProjectID,
			Name:         cmd.Name,
			ClientID:     clientID,
			RedirectURIs: cmd.RedirectURIs,
			AuthMethod:   cmd.AuthMethod,
		},
		UniqueConstraints: []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint(UniqueClientIDs, clientID),
		},
	}}, nil
}

func handleChange(ctx context.Context, cmd *ChangeCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := requireActive(cmd.ID, model); err != nil {
		return nil, err
	}

	payload := ChangedPayload{}
	if cmd.Name != nil && *cmd.Name != model.Name {
		payload.Name = cmd.Name
	}
	if cmd.RedirectURIs != nil && !model.sameRedirectURIs(*cmd.RedirectURIs) {
		payload.RedirectURIs = cmd.RedirectURIs
	}
	if cmd.AuthMethod != nil && *cmd.AuthMethod != model.AuthMethod {
		payload.AuthMethod = cmd.AuthMethod
	}
	if payload.Name == nil && payload.RedirectURIs == nil && payload.AuthMethod == nil {
		return nil, domain.NoChanges("app configuration is unchanged")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      ChangedType,
		Payload:   payload,
	}}, nil
}

func handleLifecycle(ctx context.Context, cmd *LifecycleCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("app %s does not exist", cmd.ID))
	}

	intent := &eventstore.Intent{Aggregate: cmd.Aggregate()}
	switch cmd.kind {
	case KindDeactivate:
		if model.State != domain.StateActive {
			return nil, domain.NotActive(fmt.Sprintf("app %s is not active", cmd.ID))
		}
		intent.Type = DeactivatedType
	case KindReactivate:
		if model.State != domain.StateInactive {
			return nil, domain.NotActive(fmt.Sprintf("app %s is not deactivated", cmd.ID))
		}
		intent.Type = ReactivatedType
	case KindRemove:
		intent.Type = RemovedType
		intent.Payload = RemovedPayload{ClientID: model.ClientID}
		intent.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueClientIDs, model.ClientID),
		}
	default:
		return nil, domain.Internal(nil, fmt.Sprintf("unknown app lifecycle kind %q", cmd.kind))
	}

	return []*eventstore.Intent{intent}, nil
}

func requireActive(id string, model *WriteModel) error {
	if !model.State.Exists() {
		return domain.NotFound(fmt.Sprintf("app %s does not exist", id))
	}
	if model.State != domain.StateActive {
		return domain.NotActive(fmt.Sprintf("app %s is not active", id))
	}
	return nil
}
