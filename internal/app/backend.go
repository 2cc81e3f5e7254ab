// Package app opens the storage backend selected by configuration. The
// server and the admin utilities share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sudo-init-do/servicehub/internal/config"
	"github.com/sudo-init-do/servicehub/internal/db"
	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/marketplace/memstore"
	"github.com/sudo-init-do/servicehub/internal/marketplace/pgstore"
	"github.com/sudo-init-do/servicehub/internal/marketplace/sqlitestore"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

type Backend struct {
	Store  marketplace.Store
	Ledger wallet.Ledger
	Stats  marketplace.StatsReader
	Ping   func(ctx context.Context) error
	Close  func()
}

func OpenBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.Init(ctx, cfg.Postgres(), logger)
		if err != nil {
			return nil, err
		}
		ledger := wallet.NewPGLedger(pool)
		store := pgstore.New(pool, ledger)
		return &Backend{
			Store:  store,
			Ledger: ledger,
			Stats:  store,
			Ping:   pool.Ping,
			Close:  pool.Close,
		}, nil

	case config.DriverSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.SQLitePath)
		return &Backend{
			Store:  store,
			Ledger: store,
			Stats:  store,
			Ping:   store.Ping,
			Close:  func() { _ = store.Close() },
		}, nil

	case config.DriverMemory:
		store := memstore.New()
		logger.Warn("using in-memory store; state is lost on restart")
		return &Backend{
			Store:  store,
			Ledger: store,
			Stats:  store,
			Ping:   func(context.Context) error { return nil },
			Close:  func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func NewLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
