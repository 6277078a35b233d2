package nats_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventbus"
	busnats "github.com/identra/identra/pkg/eventbus/nats"
)

func startBus(t *testing.T, opts ...busnats.Option) *busnats.Bus {
	t.Helper()
	srv := busnats.NewEmbeddedServer(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		srv.Stop(stopCtx)
	})

	bus, err := busnats.Connect(srv.ClientURL(), opts...)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func storedEvent(aggregateType domain.AggregateType, eventType domain.EventType, position int64, order int32) *domain.Event {
	return &domain.Event{
		ID:              "evt-1",
		InstanceID:      "i1",
		AggregateType:   aggregateType,
		AggregateID:     "a1",
		Type:            eventType,
		Position:        position,
		InPositionOrder: order,
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := startBus(t)

	received := make(chan eventbus.Notification, 4)
	sub, err := bus.Subscribe(func(n eventbus.Notification) { received <- n })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	err = bus.Publish(context.Background(), []*domain.Event{
		storedEvent("user", "user.created", 7, 0),
		storedEvent("org", "org.added", 7, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		select {
		case n := <-received:
			if n.InstanceID != "i1" || n.Position != 7 {
				t.Errorf("notification = %+v", n)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("notification not delivered")
		}
	}
}

func TestSubjectPrefixIsolation(t *testing.T) {
	bus := startBus(t, busnats.WithSubjectPrefix("tenant_a"))

	received := make(chan eventbus.Notification, 1)
	sub, err := bus.Subscribe(func(n eventbus.Notification) { received <- n })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := bus.Publish(context.Background(), []*domain.Event{storedEvent("user", "user.created", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	select {
	case n := <-received:
		if n.EventType != "user.created" {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
}

type recordingWaker struct {
	mu    sync.Mutex
	types []domain.AggregateType
	done  chan struct{}
}

func (w *recordingWaker) Wake(types ...domain.AggregateType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.types = append(w.types, types...)
	select {
	case w.done <- struct{}{}:
	default:
	}
}

func TestSubscribeWake(t *testing.T) {
	bus := startBus(t)

	waker := &recordingWaker{done: make(chan struct{}, 1)}
	sub, err := busnats.SubscribeWake(bus, waker)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := bus.Publish(context.Background(), []*domain.Event{storedEvent("session", "session.added", 3, 0)}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-waker.done:
	case <-time.After(5 * time.Second):
		t.Fatal("waker not poked")
	}
	waker.mu.Lock()
	defer waker.mu.Unlock()
	if len(waker.types) == 0 || waker.types[0] != "session" {
		t.Errorf("woken types = %v", waker.types)
	}
}
