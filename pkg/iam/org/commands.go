package org

import (
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/validators"
)

// Command kinds of the org aggregate.
const (
	KindAdd              = "org.add"
	KindChange           = "org.change"
	KindDeactivate       = "org.deactivate"
	KindReactivate       = "org.reactivate"
	KindRemove           = "org.remove"
	KindAddDomain        = "org.domain.add"
	KindVerifyDomain     = "org.domain.verify"
	KindSetPrimaryDomain = "org.domain.set_primary"
	KindRemoveDomain     = "org.domain.remove"
	KindAddMember        = "org.member.add"
	KindChangeMember     = "org.member.change"
	KindRemoveMember     = "org.member.remove"
)

// AddCommand creates an organization. Orgs own themselves.
type AddCommand struct {
	InstanceID string
	ID         string
	Name       string
}

func (c *AddCommand) Kind() string { return KindAdd }

func (c *AddCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *AddCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		StringLength("name", c.Name, 1, 200).
		Fields()
}

// ChangeCommand renames an organization.
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

// NewDeactivateCommand deactivates an active org.
func NewDeactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindDeactivate}
}

// NewReactivateCommand reactivates a deactivated org.
func NewReactivateCommand(instanceID, id string) *LifecycleCommand {
	return &LifecycleCommand{InstanceID: instanceID, ID: id, kind: KindReactivate}
}

// NewRemoveCommand removes an org and releases its name and domains.
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

// DomainCommand is the shared shape of the domain operations. The domain
// is lowercased before any event is produced.
type DomainCommand struct {
	InstanceID string
	ID         string
	Domain     string

	kind string
}

// NewAddDomainCommand claims a domain for the org.
func NewAddDomainCommand(instanceID, id, domainName string) *DomainCommand {
	return &DomainCommand{InstanceID: instanceID, ID: id, Domain: domainName, kind: KindAddDomain}
}

// NewVerifyDomainCommand marks a claimed domain as verified.
func NewVerifyDomainCommand(instanceID, id, domainName string) *DomainCommand {
	return &DomainCommand{InstanceID: instanceID, ID: id, Domain: domainName, kind: KindVerifyDomain}
}

// NewSetPrimaryDomainCommand makes a verified domain the primary one.
func NewSetPrimaryDomainCommand(instanceID, id, domainName string) *DomainCommand {
	return &DomainCommand{InstanceID: instanceID, ID: id, Domain: domainName, kind: KindSetPrimaryDomain}
}

// NewRemoveDomainCommand releases a non-primary domain.
func NewRemoveDomainCommand(instanceID, id, domainName string) *DomainCommand {
	return &DomainCommand{InstanceID: instanceID, ID: id, Domain: domainName, kind: KindRemoveDomain}
}

func (c *DomainCommand) Kind() string { return c.kind }

func (c *DomainCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.InstanceID, "")
}

func (c *DomainCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		StringLength("domain", c.Domain, 1, 253).
		Fields()
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
