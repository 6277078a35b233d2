package instance

import (
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/validators"
)

// Command kinds of the instance aggregate.
const (
	KindAdd           = "instance.add"
	KindChange        = "instance.change"
	KindSetFeature    = "instance.feature.set"
	KindSetQuota      = "instance.quota.set"
	KindSetDefaultOrg = "instance.default_org.set"
	KindAddMember     = "instance.member.add"
	KindChangeMember  = "instance.member.change"
	KindRemoveMember  = "instance.member.remove"
)

// AddCommand creates an instance. Only system tokens may run it; the
// authorization middleware enforces that.
type AddCommand struct {
	ID   string
	Name string
}

func (c *AddCommand) Kind() string { return KindAdd }

func (c *AddCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.ID, "")
}

func (c *AddCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		StringLength("name", c.Name, 1, 200).
		Fields()
}

// ChangeCommand renames an instance.
type ChangeCommand struct {
	ID   string
	Name string
}

func (c *ChangeCommand) Kind() string { return KindChange }

func (c *ChangeCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.ID, "")
}

func (c *ChangeCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		StringLength("name", c.Name, 1, 200).
		Fields()
}

// SetFeatureCommand toggles one feature flag.
type SetFeatureCommand struct {
	ID      string
	Feature string
	Enabled bool
}

func (c *SetFeatureCommand) Kind() string { return KindSetFeature }

func (c *SetFeatureCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.ID, "")
}

func (c *SetFeatureCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("feature", c.Feature).
		Fields()
}

// SetQuotaCommand sets one quota limit.
type SetQuotaCommand struct {
	ID    string
	Quota string
	Limit int64
}

func (c *SetQuotaCommand) Kind() string { return KindSetQuota }

func (c *SetQuotaCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.ID, "")
}

func (c *SetQuotaCommand) validate() []domain.FieldError {
	result := new(validators.Result).
		Required("id", c.ID).
		Required("quota", c.Quota)
	if c.Limit < 0 {
		result.Add("limit", validators.CodeInvalid, "must not be negative")
	}
	return result.Fields()
}

// SetDefaultOrgCommand points new signups at an org.
type SetDefaultOrgCommand struct {
	ID    string
	OrgID string
}

func (c *SetDefaultOrgCommand) Kind() string { return KindSetDefaultOrg }

func (c *SetDefaultOrgCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.ID, "")
}

func (c *SetDefaultOrgCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("orgId", c.OrgID).
		Fields()
}

// MemberCommand is the shared shape of IAM member add and change.
type MemberCommand struct {
	ID     string
	UserID string
	Roles  []string

	kind string
}

// NewAddMemberCommand grants a user IAM membership with roles.
func NewAddMemberCommand(id, userID string, roles []string) *MemberCommand {
	return &MemberCommand{ID: id, UserID: userID, Roles: roles, kind: KindAddMember}
}

// NewChangeMemberCommand replaces an IAM member's roles.
func NewChangeMemberCommand(id, userID string, roles []string) *MemberCommand {
	return &MemberCommand{ID: id, UserID: userID, Roles: roles, kind: KindChangeMember}
}

func (c *MemberCommand) Kind() string { return c.kind }

func (c *MemberCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.ID, "")
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

// RemoveMemberCommand revokes an IAM membership.
type RemoveMemberCommand struct {
	ID     string
	UserID string
}

func (c *RemoveMemberCommand) Kind() string { return KindRemoveMember }

func (c *RemoveMemberCommand) Aggregate() domain.Aggregate {
	return domain.NewAggregate(c.ID, AggregateType, c.ID, "")
}

func (c *RemoveMemberCommand) validate() []domain.FieldError {
	return new(validators.Result).
		Required("id", c.ID).
		Required("userId", c.UserID).
		Fields()
}
