package org

import (
	"slices"

	"github.com/identra/identra/pkg/domain"
)

// Domain is the per-domain state inside the write model.
type Domain struct {
	Verified bool
	Primary  bool
}

// WriteModel folds the org stream into the state the handlers decide on.
type WriteModel struct {
	domain.WriteModel

	State         domain.AggregateState
	Name          string
	PrimaryDomain string
	Domains       map[string]*Domain
	Members       map[string][]string
}

// NewWriteModel returns the empty model the stream is folded into.
func NewWriteModel() *WriteModel {
	return &WriteModel{
		Domains: map[string]*Domain{},
		Members: map[string][]string{},
	}
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
	case DomainAddedType:
		var payload DomainPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		wm.Domains[payload.Domain] = &Domain{}
	case DomainVerifiedType:
		var payload DomainPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		if d, ok := wm.Domains[payload.Domain]; ok {
			d.Verified = true
		}
	case DomainPrimarySetType:
		var payload DomainPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		for name, d := range wm.Domains {
			d.Primary = name == payload.Domain
		}
		wm.PrimaryDomain = payload.Domain
	case DomainRemovedType:
		var payload DomainPayload
		if event.UnmarshalPayload(&payload) != nil {
			return
		}
		delete(wm.Domains, payload.Domain)
		if wm.PrimaryDomain == payload.Domain {
			wm.PrimaryDomain = ""
		}
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

// DomainNames returns the claimed domains, sorted for determinism.
func (wm *WriteModel) DomainNames() []string {
	names := make([]string, 0, len(wm.Domains))
	for name := range wm.Domains {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
