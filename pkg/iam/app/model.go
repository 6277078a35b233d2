package app

import (
	"slices"

	"github.com/identra/identra/pkg/domain"
)

// WriteModel folds the app stream into the state the handlers decide
// on.
type WriteModel struct {
	domain.WriteModel

	State        domain.AggregateState
	ProjectID    string
	Name         string
	ClientID     string
	RedirectURIs []string
	AuthMethod   string
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
		wm.State = domain.StateActive
		wm.ProjectID = payload.ProjectID
		wm.Name = payload.Name
		wm.ClientID = payload.ClientID
		wm.RedirectURIs = payload.RedirectURIs
		wm.AuthMethod = payload.AuthMethod
	case ChangedType:
		var payload ChangedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		if payload.Name != nil {
			wm.Name = *payload.Name
		}
		if payload.RedirectURIs != nil {
			wm.RedirectURIs = *payload.RedirectURIs
		}
		if payload.AuthMethod != nil {
			wm.AuthMethod = *payload.AuthMethod
		}
	case DeactivatedType:
		wm.State = domain.StateInactive
	case ReactivatedType:
		wm.State = domain.StateActive
	case RemovedType:
		wm.State = domain.StateDeleted
	}
}

// sameRedirectURIs reports whether the URIs equal the current set,
// order-sensitive since the first URI is the default.
func (wm *WriteModel) sameRedirectURIs(uris []string) bool {
	return slices.Equal(wm.RedirectURIs, uris)
}
