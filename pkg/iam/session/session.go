// Package session implements the session aggregate. Sessions are
// short-lived and never resurrected: the state machine only moves
// forward from active to terminated.
package session

import (
	"time"

	"github.com/identra/identra/pkg/domain"
)

// AggregateType of sessions.
const AggregateType domain.AggregateType = "session"

// Event types of the session aggregate.
const (
	AddedType      domain.EventType = "session.added"
	TerminatedType domain.EventType = "session.terminated"
)

// State is the session lifecycle.
type State int32

const (
	StateUnspecified State = iota
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unspecified"
	}
}

// Exists reports whether the session was ever created.
func (s State) Exists() bool {
	return s != StateUnspecified
}

// AddedPayload records the new session.
type AddedPayload struct {
	UserID    string    `json:"userId"`
	UserAgent string    `json:"userAgent,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TerminatedPayload records why the session ended.
type TerminatedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// WriteModel folds the session stream into the state the handlers
// decide on.
type WriteModel struct {
	domain.WriteModel

	State     State
	UserID    string
	ExpiresAt time.Time
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
		wm.State = StateActive
		wm.UserID = payload.UserID
		wm.ExpiresAt = payload.ExpiresAt
	case TerminatedType:
		wm.State = StateTerminated
	}
}
