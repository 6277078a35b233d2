package user

import (
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/validators"
)

// Command kinds of the user aggregate.
const (
	KindCreate         = "user.create"
	KindUpdate         = "user.update"
	KindDeactivate     = "user.deactivate"
	KindReactivate     = "user.reactivate"
	KindLock           = "user.lock"
	KindUnlock         = "user.unlock"
	KindRemove         = "user.remove"
	KindChangePassword = "user.password.change"
	KindSetMetadata    = "user.metadata.set"
	KindRemoveMetadata = "user.metadata.remove"
	KindSetAddress     = "user.address.set"
)

// CreateCommand creates a user. Password is optional; when set it is
// hashed by the handler and never stored in clear.
type CreateCommand struct {
	InstanceID        string
	ID                string
	ResourceOwner     string
	Username          string
	Email             string
	FirstName         string
	LastName          string
	DisplayName       string
	PreferredLanguage string
	Password          string
}

func (c *CreateCommand) Kind() string { return KindCreate }

func (c *CreateCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, c.ResourceOwner)
}

func (c *CreateCommand) validate() []domain.FieldError {
	result := new(validators.Result).
		Required("id", c.ID).
		Required("resourceOwner", c.ResourceOwner).
		StringLength("username", c.Username, 1, 200).
		Email("email", c.Email).
		LanguageTag("preferredLanguage", c.PreferredLanguage)
	if c.Password != "" {
		result.Password("password", c.Password)
	}
	return result.Fields()
}

// UpdateCommand changes profile fields. Nil fields stay untouched; a
// command where every field is nil or equal to the current value fails
// with NO_CHANGES.
type UpdateCommand struct {
	InstanceID        string
	ID                string
	Email             *string
	FirstName         *string
	LastName          *string
	DisplayName       *string
	PreferredLanguage *string
}

func (c *UpdateCommand) Kind() string { return KindUpdate }

func (c *UpdateCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *UpdateCommand) validate() []domain.FieldError {
	result := new(validators.Result).Required("id", c.ID)
	if c.Email != nil {
		result.Email("email", *c.Email)
	}
	if c.PreferredLanguage != nil {
		result.LanguageTag("preferredLanguage", *c.PreferredLanguage)
	}
	return result.Fields()
}

// LifecycleCommand is the shared shape of the state transitions:
// deactivate, reactivate, lock, unlock and remove.
type LifecycleCommand struct {
	InstanceID string
	ID         string

	kind string
}

// NewDeactivateCommand deactivates an active user.
func NewDeactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindDeactivate}
}

// NewReactivateCommand reactivates a deactivated user.
func NewReactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindReactivate}
}

// NewLockCommand locks a user; a locked user cannot change until
// unlocked.
func NewLockCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindLock}
}

// NewUnlockCommand unlocks a locked user.
func NewUnlockCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindUnlock}
}

// NewRemoveCommand removes a user and releases its username.
func NewRemoveCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindRemove}
}

func (c *LifecycleCommand) Kind() string { return c.kind }

func (c *LifecycleCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *LifecycleCommand) validate() []domain.FieldError {
	return new(validators.Result).Required("id", c.ID).Fields()
}

// ChangePasswordCommand replaces the password of an active user.
type ChangePasswordCommand struct {
	InstanceID string
	ID         string
	Password   string
}

func (c *ChangePasswordCommand) Kind() string { return KindChangePassword }

func (c *ChangePasswordCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *ChangePasswordCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Password("password", c.Password).
		Fields()
}

// SetMetadataCommand sets one metadata key to a value.
type SetMetadataCommand struct {
	InstanceID string
	ID         string
	Key        string
	Value      string
}

func (c *SetMetadataCommand) Kind() string { return KindSetMetadata }

func (c *SetMetadataCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *SetMetadataCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		StringLength("key", c.Key, 1, 200).
		Fields()
}

// RemoveMetadataCommand removes one metadata key.
type RemoveMetadataCommand struct {
	InstanceID string
	ID         string
	Key        string
}

func (c *RemoveMetadataCommand) Kind() string { return KindRemoveMetadata }

func (c *RemoveMetadataCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *RemoveMetadataCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("key", c.Key).
		Fields()
}

// SetAddressCommand replaces the postal address as a whole.
type SetAddressCommand struct {
	InstanceID string
	ID         string
	Address    Address
}

func (c *SetAddressCommand) Kind() string { return KindSetAddress }

func (c *SetAddressCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *SetAddressCommand) validate() []domain.FieldError {
	return new(validators.Result).Required("id", c.ID).Fields()
}

