package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scylladb/argus-sub001/internal/results"
	"github.com/scylladb/argus-sub001/internal/store"
)

// openStore builds the configured store backend and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	zap.L().Debug("store ready", zap.String("driver", cfg.Store.Driver))
	return st, nil
}

// openService opens the store and wraps it in the results service.
func openService(ctx context.Context) (*results.Service, store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := results.NewService(st)
	svc.SetChartWorkers(cfg.Charts.Workers)
	return svc, st, nil
}
