// Package app implements the application aggregate: OIDC clients
// attached to a project.
package app

import "github.com/identra/identra/pkg/domain"

// AggregateType of applications.
const AggregateType domain.AggregateType = "app"

// Event types of the app aggregate.
const (
	AddedType       domain.EventType = "app.added"
	ChangedType     domain.EventType = "app.changed"
	DeactivatedType domain.EventType = "app.deactivated"
	ReactivatedType domain.EventType = "app.reactivated"
	RemovedType     domain.EventType = "app.removed"
)

// UniqueClientIDs claims OIDC client IDs per instance.
const UniqueClientIDs = "client_ids"

// Client authentication methods.
const (
	AuthMethodBasic         = "basic"
	AuthMethodPost          = "post"
	AuthMethodNone          = "none"
	AuthMethodPrivateKeyJWT = "private_key_jwt"
)

// AuthMethods lists the accepted client authentication methods.
var AuthMethods = []string{AuthMethodBasic, AuthMethodPost, AuthMethodNone, AuthMethodPrivateKeyJWT}

// AddedPayload records the initial application.
type AddedPayload struct {
	ProjectID    string   `json:"projectId"`
	Name         string   `json:"name"`
	ClientID     string   `json:"clientId"`
	RedirectURIs []string `json:"redirectUris"`
	AuthMethod   string   `json:"authMethod"`
}

// ChangedPayload carries only the fields that changed; nil means
// untouched.
type ChangedPayload struct {
	Name         *string   `json:"name,omitempty"`
	RedirectURIs *[]string `json:"redirectUris,omitempty"`
	AuthMethod   *string   `json:"authMethod,omitempty"`
}

// RemovedPayload keeps the client ID so consumers can release it.
type RemovedPayload struct {
	ClientID string `json:"clientId"`
}
