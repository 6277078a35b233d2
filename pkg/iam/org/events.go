// Package org implements the organization aggregate: lifecycle, custom
// domains and org memberships.
package org

import "github.com/identra/identra/pkg/domain"

// AggregateType of organizations.
const AggregateType domain.AggregateType = "org"

// Event types of the org aggregate.
const (
	AddedType            domain.EventType = "org.added"
	ChangedType          domain.EventType = "org.changed"
	DeactivatedType      domain.EventType = "org.deactivated"
	ReactivatedType      domain.EventType = "org.reactivated"
	RemovedType          domain.EventType = "org.removed"
	DomainAddedType      domain.EventType = "org.domain.added"
	DomainVerifiedType   domain.EventType = "org.domain.verified"
	DomainPrimarySetType domain.EventType = "org.domain.primary.set"
	DomainRemovedType    domain.EventType = "org.domain.removed"
	MemberAddedType      domain.EventType = "org.member.added"
	MemberChangedType    domain.EventType = "org.member.changed"
	MemberRemovedType    domain.EventType = "org.member.removed"
)

// Constraint indexes claimed by the org aggregate. Domains are unique
// across the whole instance, names too.
const (
	UniqueNames   = "org_names"
	UniqueDomains = "org_domains"
)

// AddedPayload records the initial org.
type AddedPayload struct {
	Name string `json:"name"`
}

// ChangedPayload renames the org.
type ChangedPayload struct {
	Name string `json:"name"`
}

// RemovedPayload keeps the name and domains so consumers can release
// derived state without reading the whole stream.
type RemovedPayload struct {
	Name    string   `json:"name"`
	Domains []string `json:"domains,omitempty"`
}

// DomainPayload is shared by all domain events; the domain is stored
// lowercased.
type DomainPayload struct {
	Domain string `json:"domain"`
}

// MemberPayload is shared by member added and changed events.
type MemberPayload struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

// MemberRemovedPayload removes one member.
type MemberRemovedPayload struct {
	UserID string `json:"userId"`
}
