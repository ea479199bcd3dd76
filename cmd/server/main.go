package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/opsched/internal/config"
	"github.com/me/opsched/internal/engine"
	"github.com/me/opsched/internal/events"
	"github.com/me/opsched/internal/loader"
	"github.com/me/opsched/internal/logging"
	"github.com/me/opsched/internal/scheduler"
	"github.com/me/opsched/internal/server"
	"github.com/me/opsched/internal/store"
	"github.com/me/opsched/pkg/model"
)

func main() {
	cfg := config.DefaultServerConfig()

	addr := flag.String("addr", cfg.Addr, "Listen address")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", cfg.LogFormat, "Log format (text, json)")
	dbPath := flag.String("db", cfg.DBPath, "Catalog database path (default ~/.opsched/opsched.db)")
	source := flag.String("source", cfg.Source, "Descriptor CSV or s3://bucket/key imported into an empty catalog")
	interval := flag.Duration("interval", cfg.Scheduler.PollInterval, "Periodic pass interval (0 disables the loop)")
	strict := flag.Bool("strict-precedence", cfg.Scheduler.StrictPrecedence, "Never plan an operation before its predecessors finish")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	configFile := flag.String("config", "", "Path to YAML server config")

	flag.Parse()

	if *configFile != "" {
		if err := config.LoadFile(*configFile, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	// Flags given on the command line win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "db":
			cfg.DBPath = *dbPath
		case "source":
			cfg.Source = *source
		case "interval":
			cfg.Scheduler.PollInterval = *interval
		case "strict-precedence":
			cfg.Scheduler.StrictPrecedence = *strict
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Resolve database path.
	path := cfg.DBPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".opsched")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		path = filepath.Join(dir, "opsched.db")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", path)

	if err := seedCatalog(ctx, st, cfg.Source, logger); err != nil {
		fmt.Fprintf(os.Stderr, "seed catalog: %v\n", err)
		os.Exit(1)
	}

	// Event sinks: the log, the journal and optionally Kafka.
	publishers := events.Multi{
		events.NewLogPublisher(logger, slog.LevelDebug),
		store.NewJournal(st),
	}
	if len(cfg.Events.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.Kafka.Brokers,
			Topic:   cfg.Events.Kafka.Topic,
		}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kafka: %v\n", err)
			os.Exit(1)
		}
		publishers = append(publishers, kp)
		logger.Info("kafka publisher enabled", "brokers", cfg.Events.Kafka.Brokers, "topic", cfg.Events.Kafka.Topic)
	}
	defer publishers.Close()

	svc := engine.New(engine.Config{
		Machines:  cfg.MachineIDs(),
		Policy:    scheduler.Policy{StrictPrecedence: cfg.Scheduler.StrictPrecedence},
		Lookahead: cfg.Scheduler.Lookahead,
	}, logger,
		engine.WithPublisher(publishers),
		engine.WithReloader(func(ctx context.Context) ([]*model.Order, error) {
			ds, err := st.ListDescriptors(ctx)
			if err != nil {
				return nil, err
			}
			return loader.BuildOrders(ds, time.Now().UTC())
		}),
	)
	n, err := svc.Reset(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load orders: %v\n", err)
		os.Exit(1)
	}
	logger.Info("orders loaded", "orders", n, "machines", len(svc.Pool()))

	// A zero interval leaves scheduling to operator-triggered passes.
	var sched scheduler.Scheduler
	if cfg.Scheduler.PollInterval > 0 {
		sched = scheduler.NewLoop(svc, scheduler.Config{PollInterval: cfg.Scheduler.PollInterval}, logger)
	}

	srv := server.New(cfg, svc, sched, logger, server.WithCatalog(st), server.WithEventLog(st))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start scheduler in background.
	srv.StartScheduler(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop scheduler before HTTP server.
	if sched != nil {
		if err := sched.Stop(); err != nil {
			logger.Error("scheduler stop error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// seedCatalog imports source into the catalog when the catalog is empty.
func seedCatalog(ctx context.Context, st *store.SQLiteStore, source string, logger *slog.Logger) error {
	if source == "" {
		return nil
	}
	n, err := st.CountOrders(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("catalog already populated, skipping source", "orders", n, "source", source)
		return nil
	}
	loc, err := loader.ParseLocation(ctx, source)
	if err != nil {
		return err
	}
	ds, err := loader.LoadDescriptors(ctx, loc)
	if err != nil {
		return err
	}
	if err := st.ReplaceDescriptors(ctx, ds); err != nil {
		return err
	}
	logger.Info("catalog seeded", "source", loc.String(), "operations", len(ds))
	return nil
}
