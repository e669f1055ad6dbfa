// Package app assembles the scour services from configuration. The server and
// the CLI share it so both drive the same job contract.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scour/internal/adapters/fetch"
	"scour/internal/adapters/llm"
	"scour/internal/adapters/memory"
	"scour/internal/adapters/natsbus"
	"scour/internal/adapters/postgres"
	"scour/internal/adapters/redisstore"
	"scour/internal/adapters/search"
	"scour/internal/config"
	"scour/internal/metrics"
	"scour/internal/ports"
	"scour/internal/services/dedupe"
	"scour/internal/services/drafts"
	"scour/internal/services/evidence"
	"scour/internal/services/health"
	"scour/internal/services/incidents"
	"scour/internal/services/quota"
	"scour/internal/services/scour"
	"scour/internal/services/sources"
	"scour/internal/services/trends"
	"scour/internal/services/validator"
)

// Store is everything the services persist through.
type Store interface {
	ports.SourceRepository
	ports.IncidentRepository
	ports.TrendRepository
	ports.JobStore
	ports.JobLocker
	ports.HealthStore
	ports.QuotaStore
	ports.SchemaCapabilities
}

type App struct {
	Logger    *slog.Logger
	Store     Store
	Metrics   *metrics.Metrics
	Jobs      *scour.Manager
	Runner    *scour.Runner
	Health    *health.Tracker
	Trends    *trends.Engine
	Incidents *incidents.Service
	Sources   *sources.Service

	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build connects the configured backends and wires the services.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Logger: logger, Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := a.openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	var quotaStore ports.QuotaStore = store
	if cfg.RedisURL != "" {
		rs, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rs.Close() })
		quotaStore = rs
	}

	var publisher ports.EventPublisher = ports.NopPublisher{}
	if cfg.NATSURL != "" {
		pub, nc, err := natsbus.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, func() { _ = nc.Drain() })
		publisher = pub
	}

	limiter := quota.NewLimiter(quotaStore, quota.Limits{Search: cfg.Quota.Search, Generate: cfg.Quota.Generate})
	completer := quota.Completer{
		Next:    llm.NewClient(llm.Config{APIKey: cfg.LLM.APIKey, BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model, Timeout: cfg.LLM.Timeout}),
		Limiter: limiter,
	}
	searcher := quota.Searcher{
		Next:    search.NewClient(search.Config{Endpoint: cfg.Search.Endpoint, APIKey: cfg.Search.APIKey, Timeout: cfg.Search.Timeout}, nil),
		Limiter: limiter,
	}
	fetcher := fetch.New(cfg.FetchTimeout)

	evCfg := evidence.DefaultConfig()
	evCfg.SearchTimeout = cfg.Search.Timeout
	evCfg.FetchTimeout = cfg.FetchTimeout

	a.Health = health.New(store, store, health.DefaultPolicy(), a.Metrics, logger)
	a.Runner = scour.NewRunner(scour.RunnerDeps{
		Sources:   store,
		Incidents: store,
		Evidence:  evidence.New(searcher, fetcher, fetcher, evCfg, logger),
		Drafts:    drafts.New(completer, cfg.LLM.Timeout, logger),
		Validator: validator.New(),
		Dedupe:    dedupe.New(store, logger),
		Health:    a.Health,
		Publisher: publisher,
		Metrics:   a.Metrics,
		Logger:    logger,
	})
	a.Jobs = scour.NewManager(store, store, store, a.Runner, a.Metrics, logger)
	a.Trends = trends.New(store, store, completer, publisher, trends.Config{LLMTimeout: cfg.LLM.Timeout}, a.Metrics, logger)
	a.Incidents = incidents.New(store, a.Trends, logger)
	a.Sources = sources.New(store, logger)

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store; state is lost on exit")
		return memory.New(), nil
	case "postgres", "":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		if err := db.DetectSchema(ctx); err != nil {
			return nil, err
		}
		if !db.SupportsGeoColumns() {
			logger.Warn("incidents table has no geo columns; incidents will be stored without geolocation")
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// AdvanceOptions are the configured defaults for worker and CLI advances,
// bounded the same way request input is.
func AdvanceOptions(cfg config.Config) scour.AdvanceOptions {
	return scour.AdvanceOptions{
		TimeBudget:    cfg.Scour.CallBudget,
		SourceTimeout: cfg.Scour.SourceTimeout,
		BatchSize:     cfg.Scour.BatchSize,
		DaysBack:      cfg.Scour.DaysBack,
	}.Clamp()
}
