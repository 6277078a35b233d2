package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
)

// QuotaUsers names the instance quota bounding the number of users.
const QuotaUsers = "users"

// FeatureMetadata gates user metadata writes per instance.
const FeatureMetadata = "user_metadata"

// UsernameChecker is the read-side duplicate probe. The unique
// constraint in the push remains authoritative; the probe only turns a
// late ALREADY_EXISTS into an early one.
type UsernameChecker interface {
	UsernameTaken(ctx context.Context, instanceID, username string) (bool, error)
}

// Counter reports current usage for the users quota.
type Counter interface {
	CountUsers(ctx context.Context, instanceID string) (int64, error)
}

// Config wires the user command handlers.
type Config struct {
	// BcryptCost for password hashing, crypto.DefaultCost when zero.
	BcryptCost int

	// Usernames, when set, pre-checks username availability on create.
	Usernames UsernameChecker

	// Users, when set, enforces the users quota on create.
	Users Counter
}

// Register adds all user command handlers to the bus.
func Register(bus *command.Bus, cfg Config) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = crypto.DefaultCost
	}

	command.Register(bus, command.Registration[*CreateCommand, *WriteModel]{
		Kind:     KindCreate,
		Validate: (*CreateCommand).validate,
		NewModel: func(*CreateCommand) *WriteModel { return NewWriteModel() },
		Handle:   cfg.handleCreate,
	})
	command.Register(bus, command.Registration[*UpdateCommand, *WriteModel]{
		Kind:     KindUpdate,
		Validate: (*UpdateCommand).validate,
		NewModel: func(*UpdateCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleUpdate,
	})
	for _, kind := range []string{KindDeactivate, KindReactivate, KindLock, KindUnlock, KindRemove} {
		command.Register(bus, command.Registration[*LifecycleCommand, *WriteModel]{
			Kind:     kind,
			Validate: (*LifecycleCommand).validate,
			NewModel: func(*LifecycleCommand) *WriteModel { return NewWriteModel() },
			Handle:   handleLifecycle,
		})
	}
	command.Register(bus, command.Registration[*ChangePasswordCommand, *WriteModel]{
		Kind:     KindChangePassword,
		Validate: (*ChangePasswordCommand).validate,
		NewModel: func(*ChangePasswordCommand) *WriteModel { return NewWriteModel() },
		Handle:   cfg.handleChangePassword,
	})
	command.Register(bus, command.Registration[*SetMetadataCommand, *WriteModel]{
		Kind:     KindSetMetadata,
		Validate: (*SetMetadataCommand).validate,
		NewModel: func(*SetMetadataCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleSetMetadata,
	})
	command.Register(bus, command.Registration[*RemoveMetadataCommand, *WriteModel]{
		Kind:     KindRemoveMetadata,
		Validate: (*RemoveMetadataCommand).validate,
		NewModel: func(*RemoveMetadataCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleRemoveMetadata,
	})
	command.Register(bus, command.Registration[*SetAddressCommand, *WriteModel]{
		Kind:     KindSetAddress,
		Validate: (*SetAddressCommand).validate,
		NewModel: func(*SetAddressCommand) *WriteModel { return NewWriteModel() },
		Handle:   handleSetAddress,
	})
}

func (cfg Config) handleCreate(ctx context.Context, cmd *CreateCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if model.State.Exists() {
		return nil, domain.AlreadyExists(fmt.Sprintf("user %s already exists", cmd.ID))
	}

	if authCtx := authz.FromContext(ctx); authCtx != nil && cfg.Users != nil {
		usage, err := cfg.Users.CountUsers(ctx, cmd.InstanceID)
		if err != nil {
			return nil, err
		}
		if err := authCtx.RequireInstanceQuota(QuotaUsers, usage); err != nil {
			return nil, err
		}
	}

	username := strings.ToLower(cmd.Username)
	if cfg.Usernames != nil {
		taken, err := cfg.Usernames.UsernameTaken(ctx, cmd.InstanceID, username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domain.AlreadyExists(fmt.Sprintf("username %s is taken", cmd.Username))
		}
	}

	payload := CreatedPayload{
		Username:          cmd.Username,
		Email:             cmd.Email,
		FirstName:         cmd.FirstName,
		LastName:          cmd.LastName,
		DisplayName:       cmd.DisplayName,
		PreferredLanguage: cmd.PreferredLanguage,
	}
	if cmd.Password != "" {
		hash, err := crypto.HashPassword(cmd.Password, crypto.WithCost(cfg.BcryptCost))
		if err != nil {
			return nil, domain.Internal(err, "hash password")
		}
		payload.PasswordHash = hash
	}

	return []*eventstore.Intent{{
		Aggregate:         cmd.Aggregate(),
		Type:              CreatedType,
		Payload:           payload,
		UniqueConstraints: []*eventstore.UniqueConstraint{eventstore.NewAddConstraint(UniqueUsernames, username)},
	}}, nil
}

func handleUpdate(ctx context.Context, cmd *UpdateCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := requireActive(cmd.ID, model); err != nil {
		return nil, err
	}

	payload := UpdatedPayload{
		Email:             changed(cmd.Email, model.Email),
		FirstName:         changed(cmd.FirstName, model.FirstName),
		LastName:          changed(cmd.LastName, model.LastName),
		DisplayName:       changed(cmd.DisplayName, model.DisplayName),
		PreferredLanguage: changed(cmd.PreferredLanguage, model.PreferredLanguage),
	}
	if payload == (UpdatedPayload{}) {
		return nil, domain.NoChanges("profile is unchanged")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      UpdatedType,
		Payload:   payload,
	}}, nil
}

func handleLifecycle(ctx context.Context, cmd *LifecycleCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("user %s does not exist", cmd.ID))
	}

	intent := &eventstore.Intent{Aggregate: cmd.Aggregate()}
	switch cmd.kind {
	case KindDeactivate:
		if model.State != domain.StateActive {
			return nil, domain.NotActive(fmt.Sprintf("user %s is not active", cmd.ID))
		}
		intent.Type = DeactivatedType
	case KindReactivate:
		if model.State != domain.StateInactive {
			return nil, domain.NotActive(fmt.Sprintf("user %s is not deactivated", cmd.ID))
		}
		intent.Type = ReactivatedType
	case KindLock:
		if model.State == domain.StateLocked {
			return nil, domain.NoChanges(fmt.Sprintf("user %s is already locked", cmd.ID))
		}
		intent.Type = LockedType
	case KindUnlock:
		if model.State != domain.StateLocked {
			return nil, domain.NotActive(fmt.Sprintf("user %s is not locked", cmd.ID))
		}
		intent.Type = UnlockedType
	case KindRemove:
		intent.Type = RemovedType
		intent.Payload = RemovedPayload{Username: model.Username}
		intent.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint(UniqueUsernames, strings.ToLower(model.Username)),
		}
	default:
		return nil, domain.Internal(nil, fmt.Sprintf("unknown user lifecycle kind %q", cmd.kind))
	}

	return []*eventstore.Intent{intent}, nil
}

func (cfg Config) handleChangePassword(ctx context.Context, cmd *ChangePasswordCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if err := requireActive(cmd.ID, model); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(cmd.Password, crypto.WithCost(cfg.BcryptCost))
	if err != nil {
		return nil, domain.Internal(err, "hash password")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      PasswordChangedType,
		Payload:   PasswordChangedPayload{PasswordHash: hash},
	}}, nil
}

func handleSetMetadata(ctx context.Context, cmd *SetMetadataCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("user %s does not exist", cmd.ID))
	}
	if authCtx := authz.FromContext(ctx); authCtx != nil {
		if err := authCtx.RequireInstanceFeature(FeatureMetadata); err != nil {
			return nil, err
		}
	}
	if current, ok := model.Metadata[cmd.Key]; ok && current == cmd.Value {
		return nil, domain.NoChanges(fmt.Sprintf("metadata key %s is unchanged", cmd.Key))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      MetadataSetType,
		Payload:   MetadataSetPayload{Key: cmd.Key, Value: cmd.Value},
	}}, nil
}

func handleRemoveMetadata(ctx context.Context, cmd *RemoveMetadataCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("user %s does not exist", cmd.ID))
	}
	if _, ok := model.Metadata[cmd.Key]; !ok {
		return nil, domain.NotFound(fmt.Sprintf("metadata key %s is not set", cmd.Key))
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      MetadataRemovedType,
		Payload:   MetadataRemovedPayload{Key: cmd.Key},
	}}, nil
}

func handleSetAddress(ctx context.Context, cmd *SetAddressCommand, model *WriteModel) ([]*eventstore.Intent, error) {
	if !model.State.Exists() {
		return nil, domain.NotFound(fmt.Sprintf("user %s does not exist", cmd.ID))
	}
	if model.Address != nil && *model.Address == cmd.Address {
		return nil, domain.NoChanges("address is unchanged")
	}

	return []*eventstore.Intent{{
		Aggregate: cmd.Aggregate(),
		Type:      AddressSetType,
		Payload:   AddressSetPayload{Address: cmd.Address},
	}}, nil
}

// changed returns field when it carries a new value, nil when absent or
// equal to the current one.
func changed(field *string, current string) *string {
	if field == nil || *field == current {
		return nil
	}
	return field
}

// requireActive gates the mutations a locked or deactivated user must
// not perform.
func requireActive(id string, model *WriteModel) error {
	if !model.State.Exists() {
		return domain.NotFound(fmt.Sprintf("user %s does not exist", id))
	}
	if model.State != domain.StateActive {
		return domain.NotActive(fmt.Sprintf("user %s is not active", id))
	}
	return nil
}
