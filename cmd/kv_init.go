package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/consumer-puls/insights-scraper/internal/kv"
	"github.com/consumer-puls/insights-scraper/internal/webalize"
)

// initKV opens the configured key-value backend and runs migrations.
func initKV(ctx context.Context) (kv.Store, error) {
	var (
		store kv.Store
		err   error
	)
	switch cfg.KV.Driver {
	case "sqlite":
		store, err = kv.NewSQLite(cfg.KV.DatabaseURL)
	case "postgres":
		store, err = kv.NewPostgres(ctx, cfg.KV.DatabaseURL, &kv.PoolConfig{
			MaxConns: cfg.KV.MaxConns,
			MinConns: cfg.KV.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown kv driver %q", cfg.KV.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "migrate kv store")
	}
	return store, nil
}

// datasetName resolves the configured dataset name, falling back to a
// URL-safe slug of the retailer and market.
func datasetName() string {
	if cfg.Dataset.Name != "" {
		return cfg.Dataset.Name
	}
	return webalize.String(fmt.Sprintf("%s-%s", cfg.Retailer.Name, cfg.Retailer.Market))
}
