// Package app wires configuration, the driver registry, the browser pool,
// the orchestrator and the HTTP API into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"teklif/internal/browser"
	"teklif/internal/config"
	"teklif/internal/driver"
	"teklif/internal/logger"
	"teklif/internal/orchestrator"
	"teklif/internal/store/model"
	sqlitestore "teklif/internal/store/sqlite"
	quotehttp "teklif/internal/transport/http"
	"teklif/internal/types"
)

// App holds every long-lived component. Built once in NewApp, torn down
// in Run's exit path.
type App struct {
	cfg      *config.Config
	registry *driver.Registry
	pool     *browser.Pool
	store    *sqlitestore.SqliteStore
	orch     *orchestrator.Orchestrator
	http     *quotehttp.Server
}

// NewApp builds the application from a loaded config without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	registry, err := driver.NewRegistry(cfg.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("driver registry: %w", err)
	}
	registry.Subscribe(func(snap driver.Snapshot) {
		logger.Infof("driver profiles reloaded: version=%d providers=%d", snap.Version, len(snap.Profiles))
	})

	pool, err := browser.NewPool(browser.PoolConfig{
		Size:           cfg.Browser.PoolSize,
		Headless:       cfg.Browser.Headless,
		AcquireTimeout: cfg.Browser.AcquireTimeout,
		UserAgent:      cfg.Browser.UserAgent,
	})
	if err != nil {
		registry.Close()
		return nil, fmt.Errorf("browser pool: %w", err)
	}

	var (
		offerStore *sqlitestore.SqliteStore
		sink       orchestrator.OfferSink
	)
	if cfg.Store.DatabasePath != "" {
		offerStore, err = sqlitestore.NewSqliteStore(cfg.Store.DatabasePath)
		if err != nil {
			pool.Close()
			registry.Close()
			return nil, fmt.Errorf("offer store: %w", err)
		}
		sink = &storeSink{store: offerStore}
	}

	hub := newProviderHub(registry, pool, cfg.Providers)
	orch := orchestrator.New(orchestrator.Config{
		MaxConcurrentSessions: cfg.Orchestrator.MaxConcurrentSessions,
		SessionTimeout:        cfg.Orchestrator.SessionTimeout,
		ResultTTL:             cfg.Orchestrator.ResultTTL,
		SweepInterval:         cfg.Orchestrator.SweepInterval,
	}, hub, sink)

	server, err := quotehttp.NewServer(quotehttp.ServerConfig{
		Addr:    cfg.Server.Addr,
		Quotes:  orch,
		Healthy: func() bool { return len(hub.Enabled()) > 0 },
	})
	if err != nil {
		orch.Close()
		pool.Close()
		registry.Close()
		return nil, fmt.Errorf("http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		registry: registry,
		pool:     pool,
		store:    offerStore,
		orch:     orch,
		http:     server,
	}, nil
}

// Run serves until ctx is cancelled, then releases every resource.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	logger.Infof("teklif starting: addr=%s providers=%d profiles=%s",
		a.http.Addr(), len(a.cfg.EnabledProviders()), a.cfg.ProfilesDir)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		err := a.orch.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	err := group.Wait()

	a.orch.Close()
	a.pool.Close()
	a.registry.Close()
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			logger.Warnf("closing offer store: %v", cerr)
		}
	}
	return err
}

// storeSink adapts the gorm-backed repository to the orchestrator's sink.
type storeSink struct {
	store *sqlitestore.SqliteStore
}

func (s *storeSink) Save(ctx context.Context, requestID string, offer types.Offer) error {
	return s.store.Offers().Save(ctx, model.FromOffer(requestID, offer))
}
