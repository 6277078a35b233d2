package project

import "github.com/identra/identra/pkg/domain"

// WriteModel folds the project stream into the state the handlers
// decide on.
type WriteModel struct {
	domain.WriteModel

	State   domain.AggregateState
	Name    string
	Members map[string][]string
}

// NewWriteModel returns the empty model the stream is folded into.
func NewWriteModel() *WriteModel {
	return &WriteModel{Members: map[string][]string{}}
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
		wm.Name = payload.Name
	case ChangedType:
		var payload ChangedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.Name = payload.Name
	case DeactivatedType:
		wm.State = domain.StateInactive
	case ReactivatedType:
		wm.State = domain.StateActive
	case RemovedType:
		wm.State = domain.StateDeleted
	case MemberAddedType, MemberChangedType:
		var payload MemberPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.Members[payload.UserID] = payload.Roles
	case MemberRemovedType:
		var payload MemberRemovedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		delete(wm.Members, payload.UserID)
	}
}
