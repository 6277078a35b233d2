package project

import (
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/validators"
)

// Command kinds of the project aggregate.
const (
	KindAdd          = "project.add"
	KindChange       = "project.change"
	KindDeactivate   = "project.deactivate"
	KindReactivate   = "project.reactivate"
	KindRemove       = "project.remove"
	KindAddMember    = "project.member.add"
	KindChangeMember = "project.member.change"
	KindRemoveMember = "project.member.remove"
)

// AddCommand creates a project owned by an org.
type AddCommand struct {
	InstanceID    string
	ID            string
	ResourceOwner string
	Name          string
}

func (c *AddCommand) Kind() string { return KindAdd }

func (c *AddCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, c.ResourceOwner)
}

func (c *AddCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("resourceOwner", c.ResourceOwner).
		StringLength("name", c.Name, 1, 200).
		Fields()
}

// ChangeCommand renames a project.
type ChangeCommand struct {
	InstanceID string
	ID         string
	Name       string
}

func (c *ChangeCommand) Kind() string { return KindChange }

func (c *ChangeCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *ChangeCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		StringLength("name", c.Name, 1, 200).
		Fields()
}

// LifecycleCommand is the shared shape of deactivate, reactivate and
// remove.
type LifecycleCommand struct {
	InstanceID string
	ID         string

	kind string
}

// NewDeactivateCommand deactivates an active project.
func NewDeactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindDeactivate}
}

// NewReactivateCommand reactivates a deactivated project.
func NewReactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindReactivate}
}

// NewRemoveCommand removes a project and releases its name.
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

// MemberCommand is the shared shape of member add and change.
type MemberCommand struct {
	InstanceID string
	ID         string
	UserID     string
	Roles      []string

	kind string
}

// NewAddMemberCommand grants a user membership with roles.
func NewAddMemberCommand(instanceID, id, userID string, roles []string) *MemberCommand {
	return &MemberCommand{InstanceID: instanceID, ID: id, UserID: userID, Roles: roles, kind: KindAddMember}
}

// NewChangeMemberCommand replaces a member's roles.
func NewChangeMemberCommand(instanceID, id, userID string, roles []string) *MemberCommand {
	return &MemberCommand{InstanceID: instanceID, ID: id, UserID: userID, Roles: roles, kind: KindChangeMember}
}

func (c *MemberCommand) Kind() string { return c.kind }

func (c *MemberCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *MemberCommand) validate() []domain.FieldError {
	result := new(validators.Result).
		Required("id", c.ID).
		Required("userId", c.UserID)
	if len(c.Roles) == 0 {
		result.Add("roles", validators.CodeRequired, "must not be empty")
	}
	return result.Fields()
}

// RemoveMemberCommand revokes a membership.
type RemoveMemberCommand struct {
	InstanceID string
	ID         string
	UserID     string
}

func (c *RemoveMemberCommand) Kind() string { return KindRemoveMember }

func (c *RemoveMemberCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *RemoveMemberCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("userId", c.UserID).
		Fields()
}
