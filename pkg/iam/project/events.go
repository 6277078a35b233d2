// Package project implements the project aggregate: lifecycle and
// project memberships. Applications reference projects but are their
// own aggregate.
package project

import "github.com/identra/identra/pkg/domain"

// AggregateType of projects.
const AggregateType domain.AggregateType = "project"

// Event types of the project aggregate.
const (
	AddedType         domain.EventType = "project.added"
	ChangedType       domain.EventType = "project.changed"
	DeactivatedType   domain.EventType = "project.deactivated"
	ReactivatedType   domain.EventType = "project.reactivated"
	RemovedType       domain.EventType = "project.removed"
	MemberAddedType   domain.EventType = "project.member.added"
	MemberChangedType domain.EventType = "project.member.changed"
	MemberRemovedType domain.EventType = "project.member.removed"
)

// UniqueNames claims project names per owning org, as
// "<resourceOwner>:<name lowercased>".
const UniqueNames = "project_names"

// AddedPayload records the initial project.
type AddedPayload struct {
	Name string `json:"name"`
}

// ChangedPayload renames the project.
type ChangedPayload struct {
	Name string `json:"name"`
}

// RemovedPayload keeps the name so consumers can release derived state.
type RemovedPayload struct {
	Name string `json:"name"`
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
