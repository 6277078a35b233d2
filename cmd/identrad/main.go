// identrad is the event-sourced IAM backend: it provisions the schema,
// registers the aggregate command handlers and runs the projection
// workers.
//
// Usage:
//
//	identrad [-config identra.yaml] migrate
//	identrad [-config identra.yaml] serve
//	identrad [-config identra.yaml] rebuild <projection>|--all
//	identrad [-config identra.yaml] status
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/config"
	"github.com/identra/identra/pkg/database"
	"github.com/identra/identra/pkg/eventstore/sqlstore"
	"github.com/identra/identra/pkg/iam"
	"github.com/identra/identra/pkg/idgen"
	"github.com/identra/identra/pkg/middleware"
	"github.com/identra/identra/pkg/observability"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/runner"
	"github.com/identra/identra/pkg/schema"
)

func main() {
	configPath := flag.String("config", "", "path to identra.yaml (default: working directory, /etc/identra)")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx := context.Background()
	switch flag.Arg(0) {
	case "migrate":
		err = runMigrate(ctx, cfg, logger)
	case "serve":
		err = runServe(ctx, cfg, logger)
	case "rebuild":
		err = runRebuild(ctx, cfg, logger, flag.Args()[1:])
	case "status":
		err = runStatus(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", slog.String("command", flag.Arg(0)), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: identrad [-config file] migrate|serve|rebuild|status")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runMigrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := schema.Setup(ctx, db); err != nil {
		return err
	}
	version, err := schema.Version(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("schema up to date", slog.Int("version", version))
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := schema.Setup(ctx, db); err != nil {
		return err
	}

	telemetry := observability.Noop()
	if cfg.Telemetry.Enabled {
		telemetry, err = observability.Init(ctx, observability.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		defer telemetry.Shutdown(context.Background())
	}

	ids, err := idgen.NewSnowflake(snowflakeConfig(cfg.IDGen))
	if err != nil {
		return err
	}

	// The store notifies the manager about committed pushes, but the
	// manager needs the store to read events. The relay breaks the cycle.
	relay := &notifierRelay{}
	store := sqlstore.New(db,
		sqlstore.WithLogger(logger),
		sqlstore.WithNotifier(relay),
		sqlstore.WithMetrics(telemetry.Metrics),
		sqlstore.WithMaxPushBatchSize(cfg.Eventstore.MaxPushBatchSize),
	)
	manager := projection.NewManager(db, store,
		projection.WithLogger(logger),
		projection.WithMetrics(telemetry.Metrics),
		projection.WithConfig(projection.Config{
			PollInterval:  cfg.Projection.PollInterval(),
			BatchSize:     cfg.Projection.BatchSize,
			MaxErrorCount: cfg.Projection.MaxErrorCount,
			LockTTL:       cfg.Projection.LockTTL(),
		}),
	)
	relay.target = manager
	for _, handler := range iam.Projections(db) {
		manager.Register(handler)
	}

	services := []runner.Service{manager}
	var publisher command.EventPublisher
	if cfg.Eventstore.EnableSubscriptions {
		bus := newBusService(cfg.NATS, manager, logger)
		publisher = bus
		if bus.embedded != nil {
			services = append([]runner.Service{bus.embedded, bus}, services...)
		} else {
			services = append([]runner.Service{bus}, services...)
		}
	}

	users := query.NewUsers(db)
	bus := command.NewBus(store, command.WithLogger(logger), command.WithEventPublisher(publisher))
	bus.Use(middleware.Recovery(logger))
	bus.Use(middleware.Logging(logger))
	bus.Use(middleware.Tracing(telemetry))
	bus.Use(middleware.Authorization(permissionRequirements()))
	iam.RegisterAll(bus, iam.Config{
		IDs:        ids,
		BcryptCost: cfg.Crypto.BcryptCost,
		Usernames:  users,
		Users:      users,
	})
	logger.Info("command handlers registered", slog.Int("kinds", len(bus.Kinds())))

	return runner.New(services, runner.WithLogger(logger)).Run(ctx)
}

func runRebuild(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("rebuild needs a projection name or --all")
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := schema.Setup(ctx, db); err != nil {
		return err
	}

	store := sqlstore.New(db, sqlstore.WithLogger(logger))
	manager := projection.NewManager(db, store, projection.WithLogger(logger))
	var names []string
	for _, handler := range iam.Projections(db) {
		manager.Register(handler)
		names = append(names, handler.Name())
	}

	if args[0] != "--all" {
		names = []string{args[0]}
	}
	for _, name := range names {
		started := time.Now()
		if err := manager.Rebuild(ctx, name); err != nil {
			return fmt.Errorf("rebuild %s: %w", name, err)
		}
		logger.Info("projection rebuilt",
			slog.String("projection", name),
			slog.Duration("duration", time.Since(started)),
		)
	}
	return nil
}

func runStatus(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	states, err := projection.NewStateStore(db).List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECTION\tSTATUS\tPOSITION\tERRORS\tLAST PROCESSED\tLAST ERROR")
	for _, state := range states {
		lastProcessed := ""
		if !state.LastProcessedAt.IsZero() {
			lastProcessed = state.LastProcessedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			state.Name, state.Status,
			state.Position.Position, state.Position.InPositionOrder,
			state.ErrorCount, lastProcessed, state.LastError,
		)
	}
	return w.Flush()
}

func snowflakeConfig(cfg config.IDGenConfig) idgen.SnowflakeConfig {
	sc := idgen.SnowflakeConfig{MachineID: int64(cfg.MachineID)}
	if cfg.Epoch != "" {
		// Validated during config load.
		sc.Epoch, _ = time.Parse(time.RFC3339, cfg.Epoch)
	}
	return sc
}
