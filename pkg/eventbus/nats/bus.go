// Package nats implements the event bus on core NATS subjects. No
// JetStream: notifications are fire-and-forget wake-up calls, and the
// event log already provides durability.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventbus"
)

// DefaultSubjectPrefix namespaces all bus subjects.
const DefaultSubjectPrefix = "identra"

// Bus publishes and subscribes event notifications over one NATS
// connection. Subjects are <prefix>.events.<aggregateType>.<eventType>.
type Bus struct {
	nc      *nats.Conn
	prefix  string
	logger  *slog.Logger
	ownConn bool

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger, defaulting to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithSubjectPrefix overrides the subject namespace.
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bus) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// Connect dials url and returns a bus owning the connection.
func Connect(url string, opts ...Option) (*Bus, error) {
	nc, err := nats.Connect(url, nats.Name("identra-eventbus"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	bus := New(nc, opts...)
	bus.ownConn = true
	return bus, nil
}

// New wraps an existing connection. The caller keeps ownership; Close
// leaves the connection open.
func New(nc *nats.Conn, opts ...Option) *Bus {
	b := &Bus{
		nc:     nc,
		prefix: DefaultSubjectPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends one notification per event. Errors after the first
// publish are collected, not short-circuited, so a slow consumer cannot
// hide later events.
func (b *Bus) Publish(ctx context.Context, events []*domain.Event) error {
	var firstErr error
	for _, event := range events {
		notification := eventbus.NotificationFor(event)
		data, err := json.Marshal(notification)
		if err != nil {
			return fmt.Errorf("marshal notification for event %s: %w", event.ID, err)
		}
		subject := fmt.Sprintf("%s.events.%s.%s", b.prefix, notification.AggregateType, notification.EventType)
		if err := b.nc.Publish(subject, data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("publish to %s: %w", subject, err)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return firstErr
}

// Subscribe delivers every notification in the namespace to handler.
func (b *Bus) Subscribe(handler func(eventbus.Notification)) (eventbus.Subscription, error) {
	subject := b.prefix + ".events.>"
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var notification eventbus.Notification
		if err := json.Unmarshal(msg.Data, &notification); err != nil {
			b.logger.Warn("dropped malformed notification",
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()),
			)
			return
		}
		handler(notification)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// Close drops all subscriptions and, when the bus dialed itself, the
// connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !b.nc.IsClosed() {
			b.logger.Warn("unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	if b.ownConn {
		b.nc.Close()
	}
	return nil
}

// Waker is what a notification subscriber pokes; the projection manager
// implements it.
type Waker interface {
	Wake(types ...domain.AggregateType)
}

// SubscribeWake wakes the matching projection workers on every incoming
// notification. This is the cross-process counterpart of the in-process
// eventstore notifier.
func SubscribeWake(bus *Bus, waker Waker) (eventbus.Subscription, error) {
	return bus.Subscribe(func(n eventbus.Notification) {
		waker.Wake(domain.AggregateType(n.AggregateType))
	})
}
