package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

type Options struct {
	URL      string // takes precedence over the individual fields
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

func (o Options) DSN() string {
	if o.URL != "" {
		return o.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(o.User, o.Password),
		Host:   o.Host + ":" + o.Port,
		Path:   "/" + o.Name,
	}
	return u.String()
}

// Init connects to Postgres, sets Conn and makes sure the schema exists.
func Init(ctx context.Context, opts Options, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	logger.Info("connected to postgres", "host", opts.Host, "database", opts.Name)

	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	Conn = pool
	return pool, nil
}

var schema = []struct {
	name string
	sql  string
}{
	{"marketplace_registry", `
		CREATE TABLE IF NOT EXISTS marketplace_registry (
			singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			admin TEXT NOT NULL,
			treasury TEXT NOT NULL,
			base_royalty_rate SMALLINT NOT NULL CHECK (base_royalty_rate BETWEEN 0 AND 100),
			created_at TIMESTAMPTZ NOT NULL
		)`},
	{"vendors", `
		CREATE TABLE IF NOT EXISTS vendors (
			id UUID PRIMARY KEY,
			owner TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL
		)`},
	{"service_records", `
		CREATE TABLE IF NOT EXISTS service_records (
			id UUID PRIMARY KEY,
			vendor TEXT NOT NULL,
			owner TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '',
			price BIGINT NOT NULL CHECK (price >= 0),
			is_soulbound BOOLEAN NOT NULL,
			royalty_rate SMALLINT NOT NULL CHECK (royalty_rate BETWEEN 0 AND 100),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`},
	{"service_records_owner_idx", `
		CREATE INDEX IF NOT EXISTS service_records_owner_idx ON service_records (owner)`},
	{"service_listings", `
		CREATE TABLE IF NOT EXISTS service_listings (
			id UUID PRIMARY KEY,
			service_id UUID NOT NULL REFERENCES service_records (id),
			vendor TEXT NOT NULL,
			price BIGINT NOT NULL CHECK (price >= 0),
			is_active BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ
		)`},
	{"service_listings_active_idx", `
		CREATE UNIQUE INDEX IF NOT EXISTS service_listings_active_idx
		ON service_listings (service_id) WHERE is_active`},
	{"wallets", `
		CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"transactions", `
		CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('debit', 'credit')),
			status TEXT NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`},
	{"transactions_user_idx", `
		CREATE INDEX IF NOT EXISTS transactions_user_idx ON transactions (user_id, created_at DESC)`},
}

// EnsureSchema creates every table the marketplace and ledger need. It is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range schema {
		if _, err := pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}
