package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/config"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/eventbus"
	busnats "github.com/identra/identra/pkg/eventbus/nats"
	"github.com/identra/identra/pkg/eventstore"
	"github.com/identra/identra/pkg/iam/instance"
	"github.com/identra/identra/pkg/iam/org"
	"github.com/identra/identra/pkg/iam/project"
	"github.com/identra/identra/pkg/iam/user"
	"github.com/identra/identra/pkg/projection"
)

// notifierRelay forwards push notifications once the target exists. The
// store is built before the projection manager, so the store gets the
// relay and the relay gets the manager.
type notifierRelay struct {
	target eventstore.Notifier
}

func (r *notifierRelay) NotifyPushed(ctx context.Context, events []*domain.Event) {
	if r.target != nil {
		r.target.NotifyPushed(ctx, events)
	}
}

// busService connects the NATS event bus as part of the service
// lifecycle: committed events go out as notifications, incoming
// notifications wake the projection workers. Before Start (and after
// Stop) publishes are dropped; the log and the poll loop stay correct
// without them.
type busService struct {
	cfg    config.NATSConfig
	waker  busnats.Waker
	logger *slog.Logger

	// embedded is the in-process nats-server, nil when dialing cfg.URL.
	// It runs as its own service ahead of this one.
	embedded *busnats.EmbeddedServer

	bus *busnats.Bus
	sub eventbus.Subscription
}

func newBusService(cfg config.NATSConfig, manager *projection.Manager, logger *slog.Logger) *busService {
	s := &busService{cfg: cfg, waker: manager, logger: logger}
	if cfg.Embedded {
		s.embedded = busnats.NewEmbeddedServer(0)
	}
	return s
}

func (s *busService) Name() string { return "eventbus" }

func (s *busService) Start(ctx context.Context) error {
	url := s.cfg.URL
	if s.embedded != nil {
		url = s.embedded.ClientURL()
	}

	bus, err := busnats.Connect(url,
		busnats.WithLogger(s.logger),
		busnats.WithSubjectPrefix(s.cfg.SubjectPrefix),
	)
	if err != nil {
		return err
	}
	sub, err := busnats.SubscribeWake(bus, s.waker)
	if err != nil {
		bus.Close()
		return fmt.Errorf("subscribe projection wake: %w", err)
	}

	s.bus = bus
	s.sub = sub
	s.logger.InfoContext(ctx, "event bus connected", slog.String("url", url))
	return nil
}

func (s *busService) Stop(context.Context) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Close()
}

// Publish implements command.EventPublisher.
func (s *busService) Publish(ctx context.Context, events []*domain.Event) error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Publish(ctx, events)
}

// permissionRequirements guards the administrative command kinds.
// Aggregate-level gates (active state, features, quotas) stay in the
// handlers; this is only the coarse who-may-ask check.
func permissionRequirements() map[string]authz.Permission {
	instanceWrite := authz.Permission{Resource: "instance", Action: "write"}
	orgWrite := authz.Permission{Resource: "org", Action: "write"}
	projectWrite := authz.Permission{Resource: "project", Action: "write"}
	userWrite := authz.Permission{Resource: "user", Action: "write"}

	return map[string]authz.Permission{
		instance.KindAdd:           instanceWrite,
		instance.KindChange:        instanceWrite,
		instance.KindSetFeature:    instanceWrite,
		instance.KindSetQuota:      instanceWrite,
		instance.KindSetDefaultOrg: instanceWrite,
		instance.KindAddMember:     instanceWrite,
		instance.KindChangeMember:  instanceWrite,
		instance.KindRemoveMember:  instanceWrite,

		org.KindRemove:     orgWrite,
		project.KindRemove: projectWrite,

		user.KindDeactivate: userWrite,
		user.KindReactivate: userWrite,
		user.KindLock:       userWrite,
		user.KindUnlock:     userWrite,
		user.KindRemove:     userWrite,
	}
}
