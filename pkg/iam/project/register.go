package project

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
)

// nameConstraint scopes the claimed name to the owning org.
func nameConstraint(owner, name string) string {
	return owner + ":" + strings.ToLower(name)
}

// Register adds all project command handlers to the bus.
func Register(bus *command.Bus) {
	command.Register(bus, command.Registration[*AddCommand, *WriteModel]{
		Kind:     KindAdd,
		Validate: (*AddCommand).validate,
		NewModel: func(*AddCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleAdd,
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
	for _, kind := range []string{KindAddMember, KindChangeMember} {
		command.Register(bus, command.Registration[*MemberCommand, *WriteModel]{
			Kind:     kind,
			Validate: (*MemberCommand).validate,
			NewModel: func(*MemberCommand) *WriteModel { return NewWriteModel() },
			Handle:   handleMember,
		})
	}
	command.Register(bus, command.Registration[*RemoveMemberCommand, *WriteModel]{
		Kind:     KindRemoveMember,
		Validate: (*RemoveMemberCommand).validate,
		NewModel: func(*RemoveMemberCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleRemoveMember,
	})
}

func handleAdd(ctx context.Context, cmd *AddCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if model.State.Exists() {
		return nil, domain.AlreadyExists(fmt.Sprintf("project %s already exists", cmd.ID))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      AddedType,
		Payload:   AddedPayload{Name: cmd.Name},
		UniqueConstraints: []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint(UniqueNames, nameConstraint(cmd.ResourceOwner, cmd.Name)),
		},
	}}, nil
}

func handleChange(ctx context.Context, cmd *ChangeCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := requireActive(cmd.ID, model); err != nil {
		return nil, err
	}
	if model.Name == cmd.Name {
		return nil, domain.NoChanges("project name is unchanged")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      ChangedType,
		Payload:   ChangedPayload{Name: cmd.Name},
		UniqueConstraints: []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueNames, nameConstraint(model.Owner, model.Name)),
			eventstore.NewAddConstraint(UniqueNames, nameConstraint(model.Owner, cmd.Name)),
		},
	}}, nil
}

func handleLifecycle(ctx context.Context, cmd *LifecycleCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("project %s does not exist", cmd.ID))
	}

	intent := &eventstore.Intent{Aggregate: cmd.Aggregate()}
	switch cmd.kind {
	case KindDeactivate:
		if model.State != domain.StateActive {
			return nil, domain.NotActive(fmt.Sprintf("project %s is not active", cmd.ID))
		}
		intent.Type = DeactivatedType
	case KindReactivate:
		if model.State != domain.StateInactive {
			return nil, domain.NotActive(fmt.Sprintf("project %s is not deactivated", cmd.ID))
		}
		intent.Type = ReactivatedType
	case KindRemove:
		intent.Type = RemovedType
		intent.Payload = RemovedPayload{Name: model.Name}
		intent.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueNames, nameConstraint(model.Owner, model.Name)),
		}
	default:
		return nil, domain.Internal(nil, fmt.Sprintf("unknown project lifecycle kind %q", cmd.kind))
	}

	return []*eventstore.Intent{intent}, nil
}

func handleMember(ctx context.Context, cmd *MemberCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := requireActive(cmd.ID, model); err != nil {
		return nil, err
	}

	roles, member := model.Members[cmd.UserID]

	intent := &eventstore.Intent{
		Aggregate: cmd.Aggregate(),
		Payload:   MemberPayload{UserID: cmd.UserID, Roles: cmd.Roles},
	}
	switch cmd.kind {
	case KindAddMember:
		if member {
			return nil, domain.AlreadyExists(fmt.Sprintf("user %s is already a member", cmd.UserID))
		}
		intent.Type = MemberAddedType
	case KindChangeMember:
		if !member {
			return nil, domain.NotFound(fmt.Sprintf("user %s is not a member", cmd.UserID))
		}
		if slices.Equal(roles, cmd.Roles) {
			return nil, domain.NoChanges("member roles are unchanged")
		}
		intent.Type = MemberChangedType
	default:
		return nil, domain.Internal(nil, fmt.Sprintf("unknown project member kind %q", cmd.kind))
	}

	return []*eventstore.Intent{intent}, nil
}

func handleRemoveMember(ctx context.Context, cmd *RemoveMemberCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("project %s does not exist", cmd.ID))
	}
	if _, member := model.Members[cmd.UserID]; !member {
		return nil, domain.NotFound(fmt.Sprintf("user %s is not a member", cmd.UserID))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      MemberRemovedType,
		Payload:   MemberRemovedPayload{UserID: cmd.UserID},
	}}, nil
}

func requireActive(id string, model *WriteModel) error {
	if !model.State.Exists() {
		return domain.NotFound(fmt.Sprintf("project %s does not exist", id))
	}
	if model.State != domain.StateActive {
		return domain.NotActive(fmt.Sprintf("project %s is not active", id))
	}
	return nil
}
