package org

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
)

// Register adds all org command handlers to the bus.
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
	for _, kind := range []string{KindAddDomain, KindVerifyDomain, KindSetPrimaryDomain, KindRemoveDomain} {
		command.Register(bus, command.Registration[*DomainCommand, *WriteModel]{
			Kind:     kind,
			Validate: (*DomainCommand).validate,
			NewModel: func(*DomainCommand) *WriteModel { return NewWriteModel() },
			Handle:   handleDomain,
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
		return nil, domain.AlreadyExists(fmt.Sprintf("org %s already exists", cmd.ID))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      AddedType,
		Payload:   AddedPayload{Name: cmd.Name},
		UniqueConstraints: []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint(UniqueNames, strings.ToLower(cmd.Name)),
		},
	}}, nil
}

func handleChange(ctx context.Context, cmd *ChangeCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := requireActive(cmd.ID, model); err != nil {
		return nil, err
	}
	if model.Name == cmd.Name {
		return nil, domain.NoChanges("org name is unchanged")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      ChangedType,
		Payload:   ChangedPayload{Name: cmd.Name},
		UniqueConstraints: []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueNames, strings.ToLower(model.Name)),
			eventstore.NewAddConstraint(UniqueNames, strings.ToLower(cmd.Name)),
		},
	}}, nil
}

func handleLifecycle(ctx context.Context, cmd *LifecycleCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("org %s does not exist", cmd.ID))
	}

	intent := &eventstore.Intent{Aggregate: cmd.Aggregate()}
	switch cmd.kind {
	case KindDeactivate:
		if model.State != domain.StateActive {
			return nil, domain.NotActive(fmt.Sprintf("org %s is not active", cmd.ID))
		}
		intent.Type = DeactivatedType
	case KindReactivate:
		if model.State != domain.StateInactive {
			return nil, domain.NotActive(fmt.Sprintf("org %s is not deactivated", cmd.ID))
		}
		intent.Type = ReactivatedType
	case KindRemove:
		domains := model.DomainNames()
		intent.Type = RemovedType
		intent.Payload = RemovedPayload{Name: model.Name, Domains: domains}
		intent.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueNames, strings.ToLower(model.Name)),
		}
		for _, name := range domains {
			intent.UniqueConstraints = append(intent.UniqueConstraints,
				eventstore.NewRemoveConstraint(UniqueDomains, name))
		}
	default:
		return nil, domain.Internal(nil, fmt.Sprintf("unknown org lifecycle kind %q", cmd.kind))
	}

	return []*eventstore.Intent{intent}, nil
}

func handleDomain(ctx context.Context, cmd *DomainCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := requireActive(cmd.ID, model); err != nil {
		return nil, err
	}

	name := strings.ToLower(cmd.Domain)
	current, claimed := model.Domains[name]

	intent := &eventstore.Intent{
		Aggregate: cmd.Aggregate(),
		Payload:   DomainPayload{Domain: name},
	}
	switch cmd.kind {
	case KindAddDomain:
		if claimed {
			return nil, domain.AlreadyExists(fmt.Sprintf("domain %s is already claimed", name))
		}
		intent.Type = DomainAddedType
		intent.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint(UniqueDomains, name),
		}
	case KindVerifyDomain:
		if !claimed {
			return nil, domain.NotFound(fmt.Sprintf("domain %s is not claimed", name))
		}
		if current.Verified {
			return nil, domain.NoChanges(fmt.Sprintf("domain %s is already verified", name))
		}
		intent.Type = DomainVerifiedType
	case KindSetPrimaryDomain:
		if !claimed {
			return nil, domain.NotFound(fmt.Sprintf("domain %s is not claimed", name))
		}
		if !current.Verified {
			return nil, domain.ValidationFailed("primary domain must be verified",
				domain.FieldError{Field: "domain", Code: "unverified", Message: "must be verified first"})
		}
		if model.PrimaryDomain == name {
			return nil, domain.NoChanges(fmt.Sprintf("domain %s is already primary", name))
		}
		intent.Type = DomainPrimarySetType
	case KindRemoveDomain:
		if !claimed {
			return nil, domain.NotFound(fmt.Sprintf("domain %s is not claimed", name))
		}
		if model.PrimaryDomain == name {
			return nil, domain.ValidationFailed("primary domain cannot be removed",
				domain.FieldError{Field: "domain", Code: "primary", Message: "set another primary domain first"})
		}
		intent.Type = DomainRemovedType
		intent.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueDomains, name),
		}
	default:
		return nil, domain.Internal(nil, fmt.Sprintf("unknown org domain kind %q", cmd.kind))
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
		return nil, domain.Internal(nil, fmt.Sprintf("unknown org member kind %q", cmd.kind))
	}

	return []*eventstore.Intent{intent}, nil
}

func handleRemoveMember(ctx context.Context, cmd *RemoveMemberCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("org %s does not exist", cmd.ID))
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
		return domain.NotFound(fmt.Sprintf("org %s does not exist", id))
	}
	if model.State != domain.StateActive {
		return domain.NotActive(fmt.Sprintf("org %s is not active", id))
	}
	return nil
}
