package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"gamestats/internal/config"
	"gamestats/internal/etl"
	"gamestats/internal/logging"
	"gamestats/internal/metrics"
	"gamestats/internal/metrics/datadog"
	"gamestats/internal/metrics/prompush"
	"gamestats/internal/schema"
	"gamestats/internal/storage"
)

var errInvalidConfig = errors.New("invalid configuration")

// Seams for tests.
var (
	openRepository = storage.New
	newPromBackend = func(job, url string) (metrics.Backend, error) { return prompush.NewBackend(job, url) }
	newDDBackend   = func(addr string) (metrics.Backend, error) {
		return datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "gamestats."})
	}
)

// execute performs the requested actions in their fixed order.
func execute(ctx context.Context, cfg *config.Config, act actions, stdout, stderr io.Writer) error {
	log := logging.New(stderr, act.verbose)

	var issues []config.Issue
	if act.needsDB() {
		issues = config.Validate(cfg, storage.ListKinds())
	} else {
		issues = config.ValidateOffline(cfg)
	}
	for _, iss := range issues {
		lvl := zerolog.WarnLevel
		if iss.Severity == config.SeverityError {
			lvl = zerolog.ErrorLevel
		}
		log.WithLevel(lvl).Str("flag", iss.Path).Msg(iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalidConfig
	}

	desc, err := loadDescriptor(cfg.SchemaPath)
	if err != nil {
		return err
	}

	if !act.needsDB() {
		return desc.Encode(stdout)
	}

	stop := setupMetrics(cfg, log)
	defer stop()

	dsn, err := cfg.ResolveDSN()
	if err != nil {
		return err
	}
	repo, err := openRepository(ctx, storage.Config{Kind: cfg.Driver, DSN: dsn})
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	defer repo.Close()
	log.Debug().Str("driver", cfg.Driver).Msg("connected")

	if act.createTables {
		if err := storage.EnsureTables(ctx, repo, desc); err != nil {
			return err
		}
		log.Info().Msg("tables ensured")
	}

	if act.introspect {
		d, ok := repo.(storage.Describer)
		if !ok {
			return fmt.Errorf("driver %s cannot introspect tables", cfg.Driver)
		}
		if desc, err = storage.Introspect(ctx, d, desc); err != nil {
			return err
		}
		log.Info().Msg("schema read from database")
	}

	if act.dumpSchema {
		if err := desc.Encode(stdout); err != nil {
			return err
		}
	}

	if !act.reset && len(act.loads) == 0 {
		return nil
	}

	loader, err := etl.NewLoader(repo, desc, etl.Options{
		JunkShortfall: cfg.JunkShortfall,
		Sheet:         cfg.Sheet,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	if act.reset {
		if err := loader.Reset(ctx); err != nil {
			return err
		}
	}

	for _, path := range act.loads {
		if _, err := loader.LoadFile(ctx, path); err != nil {
			var ie *storage.InsertError
			if errors.As(err, &ie) {
				log.Error().Str("table", ie.Table).Str("statement", ie.Statement).Msg("insert failed")
			}
			return err
		}
	}
	return nil
}

func loadDescriptor(path string) (*schema.Descriptor, error) {
	if path == "" {
		return schema.Default()
	}
	return schema.LoadFile(path)
}

// setupMetrics installs the configured backend and returns a function that
// flushes it. A backend that fails to start leaves metrics disabled.
func setupMetrics(cfg *config.Config, log zerolog.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.MetricsBackend {
	case "pushgateway":
		b, err = newPromBackend(etl.DefaultJob, cfg.PushgatewayURL)
	case "datadog":
		b, err = newDDBackend(cfg.StatsdAddr)
	default:
		log.Debug().Str("backend", cfg.MetricsBackend).Msg("metrics disabled")
		return func() {}
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.MetricsBackend).Msg("metrics backend unavailable; using nop")
		return func() {}
	}

	log.Debug().Str("backend", cfg.MetricsBackend).Msg("metrics enabled")
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics flush")
		}
	}
}
