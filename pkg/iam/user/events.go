// Package user implements the user aggregate: lifecycle, profile,
// credentials, metadata and postal address.
package user

import "github.com/identra/identra/pkg/domain"

// AggregateType of users.
const AggregateType domain.AggregateType = "user"

// Event types of the user aggregate.
const (
	CreatedType         domain.EventType = "user.created"
	UpdatedType         domain.EventType = "user.updated"
	DeactivatedType     domain.EventType = "user.deactivated"
	ReactivatedType     domain.EventType = "user.reactivated"
	LockedType          domain.EventType = "user.locked"
	UnlockedType        domain.EventType = "user.unlocked"
	RemovedType         domain.EventType = "user.removed"
	PasswordChangedType domain.EventType = "user.password.changed"
	MetadataSetType     domain.EventType = "user.metadata.set"
	MetadataRemovedType domain.EventType = "user.metadata.removed"
	AddressSetType      domain.EventType = "user.address.set"
)

// UniqueUsernames is the constraint index claiming usernames, lowercased,
// per instance.
const UniqueUsernames = "usernames"

// CreatedPayload records the initial profile. The password hash is
// present only when the user was created with a password.
type CreatedPayload struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
	PasswordHash      string `json:"passwordHash,omitempty"`
}

// UpdatedPayload carries only the profile fields that changed; nil means
// untouched.
type UpdatedPayload struct {
	Email             *string `json:"email,omitempty"`
	FirstName         *string `json:"firstName,omitempty"`
	LastName          *string `json:"lastName,omitempty"`
	DisplayName       *string `json:"displayName,omitempty"`
	PreferredLanguage *string `json:"preferredLanguage,omitempty"`
}

// RemovedPayload keeps the username so consumers can release derived
// state without reading the whole stream.
type RemovedPayload struct {
	Username string `json:"username"`
}

// PasswordChangedPayload carries the new hash, never the password.
type PasswordChangedPayload struct {
	PasswordHash string `json:"passwordHash"`
}

// MetadataSetPayload sets one metadata key.
type MetadataSetPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetadataRemovedPayload removes one metadata key.
type MetadataRemovedPayload struct {
	Key string `json:"key"`
}

// Address is the postal address of a user.
type Address struct {
	Country    string `json:"country,omitempty"`
	Locality   string `json:"locality,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Region     string `json:"region,omitempty"`
	Street     string `json:"street,omitempty"`
}

// AddressSetPayload replaces the address as a whole.
type AddressSetPayload struct {
	Address
}
