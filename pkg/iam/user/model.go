package user

import "github.com/identra/identra/pkg/domain"

// WriteModel folds the user stream into the state the handlers decide
// on.
type WriteModel struct {
	domain.WriteModel

	State             domain.AggregateState
	Username          string
	Email             string
	FirstName         string
	LastName          string
	DisplayName       string
	PreferredLanguage string
	PasswordHash      string
	Metadata          map[string]string
	Address           *Address
}

// NewWriteModel returns the empty model the stream is folded into.
func NewWriteModel() *WriteModel {
	return &WriteModel{Metadata: map[string]string{}}
}

// Reduce implements command.Model.
func (wm *WriteModel) Reduce(event *domain.Event) {
	wm.WriteModel.Reduce(event)

	switch event.Type {
	case CreatedType:
		var payload CreatedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.State = domain.StateActive
		wm.Username = payload.Username
		wm.Email = payload.Email
		wm.FirstName = payload.FirstName
		wm.LastName = payload.LastName
		wm.DisplayName = payload.DisplayName
		wm.PreferredLanguage = payload.PreferredLanguage
		wm.PasswordHash = payload.PasswordHash
	case UpdatedType:
		var payload UpdatedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		if payload.Email != nil {
			wm.Email = *payload.Email
		}
		if payload.FirstName != nil {
			wm.FirstName = *payload.FirstName
		}
		if payload.LastName != nil {
			wm.LastName = *payload.LastName
		}
		if payload.DisplayName != nil {
			wm.DisplayName = *payload.DisplayName
		}
		if payload.PreferredLanguage != nil {
			wm.PreferredLanguage = *payload.PreferredLanguage
		}
	case DeactivatedType:
		wm.State = domain.StateInactive
	case ReactivatedType, UnlockedType:
		wm.State = domain.StateActive
	case LockedType:
		wm.State = domain.StateLocked
	case RemovedType:
		wm.State = domain.StateDeleted
	case PasswordChangedType:
		var payload PasswordChangedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.PasswordHash = payload.PasswordHash
	case MetadataSetType:
		var payload MetadataSetPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.Metadata[payload.Key] = payload.Value
	case MetadataRemovedType:
		var payload MetadataRemovedPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		delete(wm.Metadata, payload.Key)
	case AddressSetType:
		var payload AddressSetPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		address := payload.Address
		wm.Address = &address
	}
}
