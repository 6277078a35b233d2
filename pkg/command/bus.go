package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventstore"
)

// EventPublisher receives committed events after a successful push.
// Delivery is fire-and-forget; publish failures are logged, never
// surfaced, because the events are already durable.
type EventPublisher interface {
	Publish(ctx context.Context, events []*domain.Event) error
}

// Bus dispatches commands to their registered handlers.
type Bus struct {
	store     eventstore.Store
	logger    *slog.Logger
	publisher EventPublisher

	mu         sync.RWMutex
	executors  map[string]HandlerFunc
	middleware []Middleware
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger, defaulting to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithEventPublisher publishes committed events after every successful
// execution, e.g. to wake projection workers over NATS.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(b *Bus) {
		b.publisher = publisher
	}
}

// NewBus creates a command bus writing to store.
func NewBus(store eventstore.Store, opts ...Option) *Bus {
	b := &Bus{
		store:     store,
		logger:    slog.Default(),
		executors: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Use appends middleware. Middleware added first runs outermost. Must be
// called during wiring, before Execute is in use.
func (b *Bus) Use(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// Kinds returns the registered command kinds, for startup logging.
func (b *Bus) Kinds() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	kinds := make([]string, 0, len(b.executors))
	for kind := range b.executors {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Execute runs cmd through the middleware chain and the registered
// handler. It returns the stored events on success.
func (b *Bus) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if cmd == nil {
		return nil, domain.ValidationFailed("command must not be nil")
	}

	b.mu.RLock()
	executor, registered := b.executors[cmd.Kind()]
	middleware := b.middleware
	b.mu.RUnlock()

	if !registered {
		return nil, domain.Internal(nil, fmt.Sprintf("no handler registered for command kind %q", cmd.Kind()))
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		executor = middleware[i](executor)
	}
	return executor(ctx, cmd)
}

// Registration binds a command kind to its validator, write model and
// handler. Validate and the model factory may be nil for commands
// without input rules or prior state.
type Registration[C Command, M Model] struct {
	// Kind is the registration key; duplicate kinds panic at wiring time.
	Kind string

	// Validate checks client input and returns field-level errors.
	Validate func(cmd C) []domain.FieldError

	// NewModel creates the empty write model the aggregate's events are
	// folded into.
	NewModel func(cmd C) M

	// Handle enforces the business rules and returns the events to
	// append. Returning no intents is an error in the handler.
	Handle func(ctx context.Context, cmd C, model M) ([]*eventstore.Intent, error)
}

// Register adds a typed registration to the bus. It panics on duplicate
// kinds and on incomplete registrations so wiring mistakes surface at
// startup, not on the first request.
func Register[C Command, M Model](bus *Bus, reg Registration[C, M]) {
	if reg.Kind == "" {
		panic("command: registration without kind")
	}
	if reg.Handle == nil {
		panic(fmt.Sprintf("command: registration %q without handler", reg.Kind))
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if _, exists := bus.executors[reg.Kind]; exists {
		panic(fmt.Sprintf("command: kind %q registered twice", reg.Kind))
	}
	bus.executors[reg.Kind] = func(ctx context.Context, c Command) (*Result, error) {
		cmd, ok := c.(C)
		if !ok {
			return nil, domain.Internal(nil, fmt.Sprintf("command kind %q carries unexpected type %T", reg.Kind, c))
		}
		return execute(ctx, bus, reg, cmd)
	}
}

func execute[C Command, M Model](ctx context.Context, bus *Bus, reg Registration[C, M], cmd C) (*Result, error) {
	if reg.Validate != nil {
		if fields := reg.Validate(cmd); len(fields) > 0 {
			return nil, domain.ValidationFailed(fmt.Sprintf("invalid %s command", reg.Kind), fields...)
		}
	}

	aggregate := cmd.Aggregate()

	var (
		model           M
		expectedVersion uint64
	)
	if reg.NewModel != nil {
		model = reg.NewModel(cmd)
		events, err := bus.store.ReadAggregate(ctx, aggregate.InstanceID, aggregate.Type, aggregate.ID)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			model.Reduce(event)
		}
		expectedVersion = model.Version()
	}

	intents, err := reg.Handle(ctx, cmd, model)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, domain.Internal(nil, fmt.Sprintf("handler for %s produced no events", reg.Kind))
	}

	stampIntents(ctx, aggregate, expectedVersion, intents)

	stored, err := bus.store.Push(ctx, intents...)
	if err != nil {
		return nil, err
	}

	if bus.publisher != nil {
		if err := bus.publisher.Publish(ctx, stored); err != nil {
			bus.logger.WarnContext(ctx, "event publish failed",
				slog.String("command", reg.Kind),
				slog.String("error", err.Error()),
			)
		}
	}

	return &Result{AggregateID: aggregate.ID, Events: stored}, nil
}

// stampIntents fills in what handlers commonly leave out: the creator
// from the authorization context, and the expected version of the first
// intent targeting the command's own aggregate, which is what makes the
// append optimistic-concurrency checked.
func stampIntents(ctx context.Context, aggregate domain.Aggregate, expectedVersion uint64, intents []*eventstore.Intent) {
	creator := ""
	if authCtx := authz.FromContext(ctx); authCtx != nil {
		creator = authCtx.UserID()
	}

	stamped := false
	for _, intent := range intents {
		if intent.Creator == "" {
			intent.Creator = creator
		}
		if !stamped && intent.Aggregate == aggregate {
			if intent.ExpectedVersion == nil {
				intent.ExpectedVersion = eventstore.Expect(expectedVersion)
			}
			stamped = true
		}
	}
}
