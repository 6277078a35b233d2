package domain

import "time"

// WriteModel is the embeddable base for deriving current aggregate state
// from events. Concrete models embed it and extend Reduce with their own
// event handling; the base keeps the bookkeeping every model needs for
// optimistic concurrency.
type WriteModel struct {
	AggregateID      string
	InstanceID       string
	Owner            string
	ProcessedVersion uint64
	CreationDate     time.Time
	ChangeDate       time.Time
}

// Reduce folds one event into the model's bookkeeping. Concrete models
// call it from their own Reduce before handling the payload.
func (wm *WriteModel) Reduce(event *Event) {
	if wm.AggregateID == "" {
		wm.AggregateID = event.AggregateID
	}
	if wm.InstanceID == "" {
		wm.InstanceID = event.InstanceID
	}
	if wm.Owner == "" {
		wm.Owner = event.Owner
	}
	if wm.CreationDate.IsZero() {
		wm.CreationDate = event.CreatedAt
	}
	wm.ChangeDate = event.CreatedAt
	wm.ProcessedVersion = event.AggregateVersion
}

// Version is the aggregate version the model has processed up to. It is
// used as the expected version for optimistic concurrency and is zero for
// aggregates without events.
func (wm *WriteModel) Version() uint64 {
	return wm.ProcessedVersion
}
