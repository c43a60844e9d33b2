package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brandforge/suggest-engine/internal/cost"
	"github.com/brandforge/suggest-engine/internal/orchestrator"
	"github.com/brandforge/suggest-engine/internal/provider"
	"github.com/brandforge/suggest-engine/internal/store"
)

// env bundles the wired-up runtime shared by all commands.
type env struct {
	store      store.Store
	registry   *provider.Registry
	dispatcher *orchestrator.Dispatcher
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	timeout := time.Duration(cfg.Orchestrator.CallTimeoutSecs) * time.Second
	reg, err := provider.FromConfigs(cfg.Providers, timeout)
	if err != nil {
		st.Close()
		return nil, err
	}

	calc := cost.NewCalculator(cfg.Pricing)
	d := orchestrator.New(ctx, st, reg, calc, cfg.Orchestrator, cfg.Aggregate)

	return &env{store: st, registry: reg, dispatcher: d}, nil
}

func (e *env) Close() {
	e.dispatcher.Shutdown()
	e.store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}
