// Package eventbus carries post-commit notifications between processes.
// The bus is a latency optimization, not a delivery guarantee: the
// event log is the source of truth and projection workers poll it
// regardless, so losing a notification only costs one poll interval.
package eventbus

import (
	"context"

	"github.com/identra/identra/pkg/domain"
)

// Notification is the compact message published for one committed
// event. It carries coordinates, never the payload; consumers read the
// log for content.
type Notification struct {
	InstanceID      string `json:"instanceId"`
	AggregateType   string `json:"aggregateType"`
	AggregateID     string `json:"aggregateId"`
	EventType       string `json:"eventType"`
	Position        int64  `json:"position"`
	InPositionOrder int32  `json:"inPositionOrder"`
}

// NotificationFor builds the notification for a stored event.
func NotificationFor(event *domain.Event) Notification {
	return Notification{
		InstanceID:      event.InstanceID,
		AggregateType:   string(event.AggregateType),
		AggregateID:     event.AggregateID,
		EventType:       string(event.Type),
		Position:        event.Position,
		InPositionOrder: event.InPositionOrder,
	}
}

// Publisher announces committed events. Implementations must not block
// on consumers; the command pipeline publishes after the transaction
// and treats failures as log-and-continue.
type Publisher interface {
	Publish(ctx context.Context, events []*domain.Event) error
}

// Subscription is an active consumer registration.
type Subscription interface {
	Unsubscribe() error
}

// Subscriber delivers notifications to a handler. The handler runs on
// the bus's goroutine and must return quickly.
type Subscriber interface {
	Subscribe(handler func(Notification)) (Subscription, error)
}
