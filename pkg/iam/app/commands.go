package app

import (
	"slices"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/validators"
)

// Command kinds of the app aggregate.
const (
	KindAdd        = "app.add"
	KindChange     = "app.change"
	KindDeactivate = "app.deactivate"
	KindReactivate = "app.reactivate"
	KindRemove     = "app.remove"
)

// AddCommand creates an application under a project. An empty ClientID
// is filled in by the handler from the ID generator.
type AddCommand struct {
	InstanceID    string
	ID            string
	ResourceOwner string
	ProjectID     string
	Name          string
	ClientID      string
	RedirectURIs  []string
	AuthMethod    string
}

func (c *AddCommand) Kind() string { return KindAdd }

func (c *AddCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, c.ResourceOwner)
}

func (c *AddCommand) validate() []domain.FieldError {
	result := new(validators.Result).
		Required("id", c.ID).
		Required("resourceOwner", c.ResourceOwner).
		Required("projectId", c.ProjectID).
		StringLength("name", c.Name, 1, 200)
	if !slices.Contains(AuthMethods, c.AuthMethod) {
		result.Add("authMethod", validators.CodeInvalid, "must be one of basic, post, none, private_key_jwt")
	}
	if len(c.RedirectURIs) == 0 {
		result.Add("redirectUris", validators.CodeRequired, "must not be empty")
	}
	return result.Fields()
}

// ChangeCommand updates an application. Nil fields stay untouched.
type ChangeCommand struct {
	InstanceID   string
	ID           string
	Name         *string
	RedirectURIs *[]string
	AuthMethod   *string
}

func (c *ChangeCommand) Kind() string { return KindChange }

func (c *ChangeCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *ChangeCommand) validate() []domain.FieldError {
	result := new(validators.Result).Required("id", c.ID)
	if c.AuthMethod != nil && !slices.Contains(AuthMethods, *c.AuthMethod) {
		result.Add("authMethod", validators.CodeInvalid, "must be one of basic, post, none, private_key_jwt")
	}
	if c.RedirectURIs != nil && len(*c.RedirectURIs) == 0 {
		result.Add("redirectUris", validators.CodeRequired, "must not be empty")
	}
	return result.Fields()
}

// LifecycleCommand is the shared shape of deactivate, reactivate and
// remove.
type LifecycleCommand struct {
	InstanceID string
	ID         string

	kind string
}

// NewDeactivateCommand deactivates an active app.
func NewDeactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindDeactivate}
}

// NewReactivateCommand reactivates a deactivated app.
func NewReactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindReactivate}
}

// NewRemoveCommand removes an app and releases its client ID.
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
