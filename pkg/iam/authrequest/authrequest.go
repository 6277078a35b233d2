// Package authrequest implements the authorization request aggregate:
// one OIDC authorization code flow from the initial redirect to its
// terminal success or failure.
package authrequest

import "github.com/identra/identra/pkg/domain"

// AggregateType of authorization requests.
const AggregateType domain.AggregateType = "auth_request"

// Event types of the auth request aggregate.
const (
	AddedType     domain.EventType = "auth_request.added"
	CodeAddedType domain.EventType = "auth_request.code.added"
	SucceededType domain.EventType = "auth_request.succeeded"
	FailedType    domain.EventType = "auth_request.failed"
)

// UniqueCodes claims outstanding authorization codes per instance. The
// claim is released when the request reaches a terminal state, so a
// code can never be exchanged twice.
const UniqueCodes = "auth_request_codes"

// State is the auth request lifecycle. It only moves forward.
type State int32

const (
	StateUnspecified State = iota
	StateAdded
	StateCodeIssued
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAdded:
		return "added"
	case StateCodeIssued:
		return "code_issued"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// Exists reports whether the request was ever created.
func (s State) Exists() bool {
	return s != StateUnspecified
}

// Terminal reports whether the request can no longer change.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// AddedPayload records the incoming authorization request.
type AddedPayload struct {
	ClientID    string   `json:"clientId"`
	RedirectURI string   `json:"redirectUri"`
	Scopes      []string `json:"scopes,omitempty"`
	LoginHint   string   `json:"loginHint,omitempty"`
}

// CodeAddedPayload binds the authenticated user and the issued code.
type CodeAddedPayload struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

// SucceededPayload records the code exchange.
type SucceededPayload struct {
	SessionID string `json:"sessionId,omitempty"`
}

// FailedPayload records why the flow ended.
type FailedPayload struct {
	Reason string `json:"reason"`
}

// WriteModel folds the auth request stream into the state the handlers
// decide on.
type WriteModel struct {
	domain.WriteModel

	State    State
	ClientID string
	UserID   string
	Code     string
}

// NewWriteModel returns the empty model the stream is folded into.
func NewWriteModel() *WriteModel {
	return &WriteModel{}
}

// Reduce implements command.Model.
func (wm *WriteModel) Reduce(event *domain.Event) {
	wm.WriteModel.Reduce(event)

	switch event.Type {
	case AddedType:
		var payload AddedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.State = StateAdded
		wm.ClientID = payload.ClientID
	case CodeAddedType:
		var payload CodeAddedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.State = StateCodeIssued
		wm.UserID = payload.UserID
		wm.Code = payload.Code
	case SucceededType:
		wm.State = StateSucceeded
	case FailedType:
		wm.State = StateFailed
	}
}
