// Package instance implements the instance aggregate: the multi-tenant
// root carrying feature flags, quotas, the default org and IAM
// memberships.
package instance

import "github.com/identra/identra/pkg/domain"

// AggregateType of instances. An instance aggregate lives inside its
// own tenant boundary: instance ID and aggregate ID coincide.
const AggregateType domain.AggregateType = "instance"

// Event types of the instance aggregate.
const (
	AddedType         domain.EventType = "instance.added"
	ChangedType       domain.EventType = "instance.changed"
	FeatureSetType    domain.EventType = "instance.feature.set"
	QuotaSetType      domain.EventType = "instance.quota.set"
	DefaultOrgSetType domain.EventType = "instance.default_org.set"
	MemberAddedType   domain.EventType = "instance.member.added"
	MemberChangedType domain.EventType = "instance.member.changed"
	MemberRemovedType domain.EventType = "instance.member.removed"
)

// AddedPayload records the initial instance.
type AddedPayload struct {
	Name string `json:"name"`
}

// ChangedPayload renames the instance.
type ChangedPayload struct {
	Name string `json:"name"`
}

// FeatureSetPayload toggles one feature flag.
type FeatureSetPayload struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

// QuotaSetPayload sets one quota limit. A zero limit blocks the
// resource entirely; absent quotas are unlimited.
type QuotaSetPayload struct {
	Quota string `json:"quota"`
	Limit int64  `json:"limit"`
}

// DefaultOrgSetPayload points new signups at an org.
type DefaultOrgSetPayload struct {
	OrgID string `json:"orgId"`
}

// MemberPayload is shared by member added and changed events. Roles are
// IAM roles such as IAM_OWNER.
type MemberPayload struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

// MemberRemovedPayload removes one IAM member.
type MemberRemovedPayload struct {
	UserID string `json:"userId"`
}
