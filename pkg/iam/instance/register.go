package instance

import (
	"context"
	"fmt"
	"slices"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
)

// Register adds all instance command handlers to the bus.
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
	command.Register(bus, command.Registration[*SetFeatureCommand, *WriteModel]{
		Kind:     KindSetFeature,
		Validate: (*SetFeatureCommand).validate,
		NewModel: func(*SetFeatureCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleSetFeature,
	})
	command.Register(bus, command.Registration[*SetQuotaCommand, *WriteModel]{
		Kind:     KindSetQuota,
		Validate: (*SetQuotaCommand).validate,
		NewModel: func(*SetQuotaCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleSetQuota,
	})
	command.Register(bus, command.Registration[*SetDefaultOrgCommand, *WriteModel]{
		Kind:     KindSetDefaultOrg,
		Validate: (*SetDefaultOrgCommand).validate,
		NewModel: func(*SetDefaultOrgCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleSetDefaultOrg,
	})
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
		return nil, domain.AlreadyExists(fmt.Sprintf("instance %s already exists", cmd.ID))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      AddedType,
		Payload:   AddedPayload{Name: cmd.Name},
	}}, nil
}

func handleChange(ctx context.Context, cmd *ChangeCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := exists(cmd.ID, model); err != nil {
		return nil, err
	}
	if model.Name == cmd.Name {
		return nil, domain.NoChanges("instance name is unchanged")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      ChangedType,
		Payload:   ChangedPayload{Name: cmd.Name},
	}}, nil
}

func handleSetFeature(ctx context.Context, cmd *SetFeatureCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := exists(cmd.ID, model); err != nil {
		return nil, err
	}
	if enabled, known := model.Features[cmd.Feature]; known && enabled == cmd.Enabled {
		return nil, domain.NoChanges(fmt.Sprintf("feature %s is unchanged", cmd.Feature))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      FeatureSetType,
		Payload:   FeatureSetPayload{Feature: cmd.Feature, Enabled: cmd.Enabled},
	}}, nil
}

func handleSetQuota(ctx context.Context, cmd *SetQuotaCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := exists(cmd.ID, model); err != nil {
		return nil, err
	}
	if limit, known := model.Quotas[cmd.Quota]; known && limit == cmd.Limit {
		return nil, domain.NoChanges(fmt.Sprintf("quota %s is unchanged", cmd.Quota))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      QuotaSetType,
		Payload:   QuotaSetPayload{Quota: cmd.Quota, Limit: cmd.Limit},
	}}, nil
}

func handleSetDefaultOrg(ctx context.Context, cmd *SetDefaultOrgCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := exists(cmd.ID, model); err != nil {
		return nil, err
	}
	if model.DefaultOrgID == cmd.OrgID {
		return nil, domain.NoChanges("default org is unchanged")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      DefaultOrgSetType,
		Payload:   DefaultOrgSetPayload{OrgID: cmd.OrgID},
	}}, nil
}

func handleMember(ctx context.Context, cmd *MemberCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := exists(cmd.ID, model); err != nil {
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
			return nil, domain.AlreadyExists(fmt.Sprintf("user %s is already an IAM member", cmd.UserID))
		}
		intent.Type = MemberAddedType
	case KindChangeMember:
		if !member {
			return nil, domain.NotFound(fmt.Sprintf("user %s is not an IAM member", cmd.UserID))
		}
		if slices.Equal(roles, cmd.Roles) {
			return nil, domain.NoChanges("member roles are unchanged")
		}
		intent.Type = MemberChangedType
	default:
		return nil, domain.Internal(nil, fmt.Sprintf("unknown instance member kind %q", cmd.kind))
	}

	return []*eventstore.Intent{intent}, nil
}

func handleRemoveMember(ctx context.Context, cmd *RemoveMemberCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := exists(cmd.ID, model); err != nil {
		return nil, err
	}
	if _, member := model.Members[cmd.UserID]; !member {
		return nil, domain.NotFound(fmt.Sprintf("user %s is not an IAM member", cmd.UserID))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      MemberRemovedType,
		Payload:   MemberRemovedPayload{UserID: cmd.UserID},
	}}, nil
}

func exists(id string, model *WriteModel) error {
	if !model.State.Exists() {
		return domain.NotFound(fmt.Sprintf("instance %s does not exist", id))
	}
	return nil
}
