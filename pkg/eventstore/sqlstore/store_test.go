package sqlstore_test

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/eventstore/sqlstore"
	"github.com/identra/identra/pkg/observability"
	"github.com/identra/identra/pkg/schema"
)

const userType domain.AggregateType = "user"

func newStore(t *testing.T, opts ...sqlstore.Option) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.DefaultConfig())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := schema.Setup(ctx, db); err != nil {
		t.Fatalf("setup schema: %v", err)
	}
	return sqlstore.New(db, opts...)
}

func intent(instanceID, aggregateID string, eventType domain.EventType) *eventstore.Intent {
	return &eventstore.Intent{
		Aggregate: domain.NewAggregate(aggregateID, userType, instanceID, "org-1"),
		Type:      eventType,
		Creator:   "tester",
	}
}

func TestPushAssignsContiguousVersions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		events, err := store.Push(ctx, intent("i1", "u1", "user.created"))
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if got := events[0].AggregateVersion; got != uint64(i) {
			t.Errorf("version = %d, want %d", got, i)
		}
	}

	events, err := store.ReadAggregate(ctx, "i1", userType, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	for i, event := range events {
		if event.AggregateVersion != uint64(i+1) {
			t.Errorf("event %d has version %d", i, event.AggregateVersion)
		}
	}
}

func TestPushBatchSharesPosition(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	events, err := store.Push(ctx,
		intent("i1", "u1", "user.created"),
		intent("i1", "u2", "user.created"),
		intent("i1", "u1", "user.updated"),
	)
	if err != nil {
		t.Fatal(err)
	}

	position := events[0].Position
	for i, event := range events {
		if event.Position != position {
			t.Errorf("event %d has position %d, want %d", i, event.Position, position)
		}
		if event.InPositionOrder != int32(i) {
			t.Errorf("event %d has order %d", i, event.InPositionOrder)
		}
	}

	// Two intents for u1 in one batch stack their versions.
	if events[0].AggregateVersion != 1 || events[2].AggregateVersion != 2 {
		t.Errorf("u1 versions = %d, %d", events[0].AggregateVersion, events[2].AggregateVersion)
	}
}

func TestPushExpectedVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Push(ctx, intent("i1", "u1", "user.created")); err != nil {
		t.Fatal(err)
	}

	t.Run("matching version succeeds", func(t *testing.T) {
		update := intent("i1", "u1", "user.updated")
		update.ExpectedVersion = eventstore.Expect(1)
		if _, err := store.Push(ctx, update); err != nil {
			t.Fatalf("push: %v", err)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		update := intent("i1", "u1", "user.updated")
		update.ExpectedVersion = eventstore.Expect(1)
		_, err := store.Push(ctx, update)
		if !domain.IsCode(err, domain.CodeConcurrencyConflict) {
			t.Fatalf("expected CONCURRENCY_CONFLICT, got %v", err)
		}
	})

	t.Run("failed push leaves log unchanged", func(t *testing.T) {
		events, err := store.ReadAggregate(ctx, "i1", userType, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Errorf("events = %d, want 2", len(events))
		}
	})
}

func TestConcurrentPushSameExpectedVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.Push(ctx, intent("i1", "u1", "user.created")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			update := intent("i1", "u1", "user.updated")
			update.ExpectedVersion = eventstore.Expect(1)
			_, results[slot] = store.Push(ctx, update)
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case domain.IsCode(err, domain.CodeConcurrencyConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Errorf("succeeded = %d, conflicted = %d, want exactly one of each", succeeded, conflicted)
	}
}

func TestGlobalOrderMatchesCommitOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	var want []string
	for _, id := range []string{"a", "b", "c", "a", "c"} {
		events, err := store.Push(ctx, intent("i1", id, "user.created"))
		if err != nil {
			t.Fatal(err)
		}
		want = append(want, events[0].ID)
	}

	events, err := store.ReadSince(ctx, domain.Position{}, 100, eventstore.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	last := domain.Position{}
	for i, event := range events {
		if event.ID != want[i] {
			t.Errorf("event %d is %s, want %s", i, event.ID, want[i])
		}
		if !event.GlobalPosition().After(last) {
			t.Errorf("event %d does not sort after its predecessor", i)
		}
		last = event.GlobalPosition()
	}
}

func TestReadSinceCursorAndFilter(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	batch, err := store.Push(ctx,
		intent("i1", "u1", "user.created"),
		intent("i1", "u2", "user.created"),
	)
	if err != nil {
		t.Fatal(err)
	}
	orgIntent := &eventstore.Intent{
		Aggregate: domain.NewAggregate("o1", "org", "i1", ""),
		Type:      "org.added",
		Creator:   "tester",
	}
	if _, err := store.Push(ctx, orgIntent); err != nil {
		t.Fatal(err)
	}

	t.Run("cursor inside a position", func(t *testing.T) {
		events, err := store.ReadSince(ctx, batch[0].GlobalPosition(), 100, eventstore.Filter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Fatalf("events = %d, want 2", len(events))
		}
		if events[0].ID != batch[1].ID {
			t.Errorf("first event = %s, want %s", events[0].ID, batch[1].ID)
		}
	})

	t.Run("aggregate type filter", func(t *testing.T) {
		events, err := store.ReadSince(ctx, domain.Position{}, 100,
			eventstore.Filter{AggregateTypes: []domain.AggregateType{"org"}})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].AggregateType != "org" {
			t.Errorf("filtered events = %+v", events)
		}
	})

	t.Run("limit", func(t *testing.T) {
		events, err := store.ReadSince(ctx, domain.Position{}, 2, eventstore.Filter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Errorf("events = %d, want 2", len(events))
		}
	})
}

func TestCurrentPosition(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	pos, err := store.CurrentPosition(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.IsZero() {
		t.Errorf("empty log position = %v", pos)
	}

	events, err := store.Push(ctx, intent("i1", "u1", "user.created"), intent("i1", "u2", "user.created"))
	if err != nil {
		t.Fatal(err)
	}
	pos, err = store.CurrentPosition(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pos != events[1].GlobalPosition() {
		t.Errorf("position = %v, want %v", pos, events[1].GlobalPosition())
	}
}

func TestLatestVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	version, err := store.LatestVersion(ctx, "i1", userType, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0 for missing aggregate", version)
	}

	if _, err := store.Push(ctx, intent("i1", "u1", "user.created"), intent("i1", "u1", "user.updated")); err != nil {
		t.Fatal(err)
	}
	version, err = store.LatestVersion(ctx, "i1", userType, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}

func TestUniqueConstraints(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	create := intent("i1", "u1", "user.created")
	create.UniqueConstraints = []*eventstore.UniqueConstraint{
		eventstore.NewAddConstraint("usernames", "alice"),
	}
	if _, err := store.Push(ctx, create); err != nil {
		t.Fatal(err)
	}

	t.Run("duplicate claim fails atomically", func(t *testing.T) {
		dup := intent("i1", "u2", "user.created")
		dup.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint("usernames", "alice"),
		}
		_, err := store.Push(ctx, dup)
		if !domain.IsCode(err, domain.CodeAlreadyExists) {
			t.Fatalf("expected ALREADY_EXISTS, got %v", err)
		}
		if version, _ := store.LatestVersion(ctx, "i1", userType, "u2"); version != 0 {
			t.Errorf("event stored despite constraint violation")
		}
	})

	t.Run("same value in another instance", func(t *testing.T) {
		other := intent("i2", "u1", "user.created")
		other.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint("usernames", "alice"),
		}
		if _, err := store.Push(ctx, other); err != nil {
			t.Fatalf("constraint leaked across instances: %v", err)
		}
	})

	t.Run("release frees the value", func(t *testing.T) {
		remove := intent("i1", "u1", "user.removed")
		remove.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewRemoveConstraint("usernames", "alice"),
		}
		if _, err := store.Push(ctx, remove); err != nil {
			t.Fatal(err)
		}
		reclaim := intent("i1", "u3", "user.created")
		reclaim.UniqueConstraints = []*eventstore.UniqueConstraint{
			eventstore.NewAddConstraint("usernames", "alice"),
		}
		if _, err := store.Push(ctx, reclaim); err != nil {
			t.Fatalf("released value not claimable: %v", err)
		}
	})
}

func TestPushValidation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	t.Run("empty push is a no-op", func(t *testing.T) {
		events, err := store.Push(ctx)
		if err != nil || events != nil {
			t.Errorf("empty push = %v, %v", events, err)
		}
	})

	t.Run("missing coordinates", func(t *testing.T) {
		_, err := store.Push(ctx, &eventstore.Intent{Type: "user.created"})
		if !domain.IsCode(err, domain.CodeValidationFailed) {
			t.Fatalf("expected VALIDATION_FAILED, got %v", err)
		}
	})
}

func TestMaxPushBatchSize(t *testing.T) {
	store := newStore(t, sqlstore.WithMaxPushBatchSize(2))
	ctx := context.Background()

	_, err := store.Push(ctx,
		intent("i1", "u1", "user.created"),
		intent("i1", "u2", "user.created"),
		intent("i1", "u3", "user.created"),
	)
	if !domain.IsCode(err, domain.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes [][]*domain.Event
}

func (n *recordingNotifier) NotifyPushed(_ context.Context, events []*domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, events)
}

func TestNotifier(t *testing.T) {
	notifier := &recordingNotifier{}
	store := newStore(t, sqlstore.WithNotifier(notifier))
	ctx := context.Background()

	if _, err := store.Push(ctx, intent("i1", "u1", "user.created")); err != nil {
		t.Fatal(err)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.pushes) != 1 || len(notifier.pushes[0]) != 1 {
		t.Errorf("notifier pushes = %+v", notifier.pushes)
	}
}

func TestPushRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := observability.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	if err != nil {
		t.Fatalf("create metrics: %v", err)
	}
	store := newStore(t, sqlstore.WithMetrics(metrics))
	ctx := context.Background()

	if _, err := store.Push(ctx, intent("i1", "u1", "user.created"), intent("i1", "u2", "user.created")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Push(ctx, intent("i1", "u1", "user.updated")); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var appended int64 = -1
	var pushes uint64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch m.Name {
			case "identra.events.appended":
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("events.appended data = %T", m.Data)
				}
				appended = 0
				for _, dp := range sum.DataPoints {
					appended += dp.Value
				}
			case "identra.eventstore.push.duration":
				hist, ok := m.Data.(metricdata.Histogram[float64])
				if !ok {
					t.Fatalf("push.duration data = %T", m.Data)
				}
				for _, dp := range hist.DataPoints {
					pushes += dp.Count
				}
			}
		}
	}
	if appended != 3 {
		t.Errorf("events appended = %d, want 3", appended)
	}
	if pushes != 2 {
		t.Errorf("push duration samples = %d, want 2", pushes)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	type profile struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	create := intent("i1", "u1", "user.created")
	create.Payload = profile{Username: "alice", Email: "a@x.com"}

	if _, err := store.Push(ctx, create); err != nil {
		t.Fatal(err)
	}
	events, err := store.ReadAggregate(ctx, "i1", userType, "u1")
	if err != nil {
		t.Fatal(err)
	}

	var decoded profile
	if err := events[0].UnmarshalPayload(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Username != "alice" || decoded.Email != "a@x.com" {
		t.Errorf("decoded = %+v", decoded)
	}
}
