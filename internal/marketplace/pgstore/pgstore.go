// Package pgstore is the Postgres backend of the marketplace. Record
// mutations take a row lock on the service record, and a partial unique
// index keeps at most one active listing per record.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

const uniqueViolation = "23505"

var _ marketplace.Store = (*Store)(nil)

type Store struct {
	reader
	pool   *pgxpool.Pool
	ledger *wallet.PGLedger
}

func New(pool *pgxpool.Pool, ledger *wallet.PGLedger) *Store {
	return &Store{reader: reader{q: pool}, pool: pool, ledger: ledger}
}

func (s *Store) InTx(ctx context.Context, fn func(tx marketplace.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{reader: reader{q: tx}, tx: tx, ledger: s.ledger}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (marketplace.Stats, error) {
	var (
		st    marketplace.Stats
		total int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM vendors),
			(SELECT COUNT(*) FROM service_records),
			(SELECT COUNT(*) FROM service_listings WHERE is_active),
			(SELECT COUNT(*) FROM service_listings WHERE NOT is_active),
			(SELECT COALESCE(SUM(balance), 0) FROM wallets)`,
	).Scan(&st.Vendors, &st.ServiceRecords, &st.ActiveListings, &st.ClosedListings, &total)
	if err != nil {
		return marketplace.Stats{}, err
	}
	st.LedgerTotal = uint64(total)
	return st, nil
}

// reader runs the read queries against either the pool or an open transaction.
type reader struct {
	q wallet.DBTX
}

func (r reader) Registry(ctx context.Context) (marketplace.Registry, error) {
	var (
		reg  marketplace.Registry
		rate int16
	)
	err := r.q.QueryRow(ctx,
		`SELECT admin, treasury, base_royalty_rate, created_at FROM marketplace_registry`,
	).Scan(&reg.Admin, &reg.Treasury, &rate, &reg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Registry{}, marketplace.ErrRegistryNotFound
	}
	if err != nil {
		return marketplace.Registry{}, err
	}
	reg.BaseRoyaltyRate = uint8(rate)
	return reg, nil
}

const vendorColumns = `id::text, owner, name, description, active, created_at`

func scanVendor(row pgx.Row) (marketplace.Vendor, error) {
	var v marketplace.Vendor
	err := row.Scan(&v.ID, &v.Owner, &v.Name, &v.Description, &v.Active, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Vendor{}, marketplace.ErrNotFound
	}
	return v, err
}

func (r reader) Vendor(ctx context.Context, id string) (marketplace.Vendor, error) {
	if !validUUID(id) {
		return marketplace.Vendor{}, marketplace.ErrNotFound
	}
	return scanVendor(r.q.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id))
}

func (r reader) VendorByOwner(ctx context.Context, owner string) (marketplace.Vendor, error) {
	return scanVendor(r.q.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE owner = $1`, owner))
}

const recordColumns = `id::text, vendor, owner, metadata, price, is_soulbound, royalty_rate, created_at, updated_at`

func scanRecord(row pgx.Row) (marketplace.ServiceRecord, error) {
	var (
		rec   marketplace.ServiceRecord
		price int64
		rate  int16
	)
	err := row.Scan(&rec.ID, &rec.Vendor, &rec.Owner, &rec.Metadata, &price,
		&rec.IsSoulbound, &rate, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.ServiceRecord{}, marketplace.ErrNotFound
	}
	if err != nil {
		return marketplace.ServiceRecord{}, err
	}
	rec.Price = uint64(price)
	rec.RoyaltyRate = uint8(rate)
	return rec, nil
}

func (r reader) ServiceRecord(ctx context.Context, id string) (marketplace.ServiceRecord, error) {
	if !validUUID(id) {
		return marketplace.ServiceRecord{}, marketplace.ErrNotFound
	}
	return scanRecord(r.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM service_records WHERE id = $1`, id))
}

func (r reader) ServicesOwnedBy(ctx context.Context, owner string) ([]marketplace.ServiceRecord, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+recordColumns+` FROM service_records WHERE owner = $1 ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []marketplace.ServiceRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r reader) ActiveListing(ctx context.Context, serviceID string) (marketplace.ServiceListing, error) {
	if !validUUID(serviceID) {
		return marketplace.ServiceListing{}, marketplace.ErrNotFound
	}
	var (
		l     marketplace.ServiceListing
		price int64
	)
	err := r.q.QueryRow(ctx,
		`SELECT id::text, service_id::text, vendor, price, is_active, created_at, closed_at
		 FROM service_listings
		 WHERE service_id = $1 AND is_active`,
		serviceID,
	).Scan(&l.ID, &l.ServiceID, &l.Vendor, &price, &l.IsActive, &l.CreatedAt, &l.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.ServiceListing{}, marketplace.ErrNotFound
	}
	if err != nil {
		return marketplace.ServiceListing{}, err
	}
	l.Price = uint64(price)
	return l, nil
}

type pgTx struct {
	reader
	tx     pgx.Tx
	ledger *wallet.PGLedger
}

func (t *pgTx) CreateRegistry(ctx context.Context, reg marketplace.Registry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO marketplace_registry (admin, treasury, base_royalty_rate, created_at)
		 VALUES ($1, $2, $3, $4)`,
		reg.Admin, reg.Treasury, int16(reg.BaseRoyaltyRate), reg.CreatedAt,
	)
	if isUniqueViolation(err) {
		return marketplace.ErrRegistryExists
	}
	return err
}

func (t *pgTx) CreateVendor(ctx context.Context, v marketplace.Vendor) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO vendors (id, owner, name, description, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.Owner, v.Name, v.Description, v.Active, v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return marketplace.ErrVendorExists
	}
	return err
}

func (t *pgTx) CreateServiceRecord(ctx context.Context, rec marketplace.ServiceRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO service_records (id, vendor, owner, metadata, price, is_soulbound, royalty_rate, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Vendor, rec.Owner, rec.Metadata, int64(rec.Price), rec.IsSoulbound,
		int16(rec.RoyaltyRate), rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (t *pgTx) LockServiceRecord(ctx context.Context, id string) (marketplace.ServiceRecord, error) {
	if !validUUID(id) {
		return marketplace.ServiceRecord{}, marketplace.ErrNotFound
	}
	return scanRecord(t.tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM service_records WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SetServiceOwner(ctx context.Context, id, owner string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE service_records SET owner = $1, updated_at = $2 WHERE id = $3`, owner, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrNotFound
	}
	return nil
}

func (t *pgTx) CreateListing(ctx context.Context, l marketplace.ServiceListing) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO service_listings (id, service_id, vendor, price, is_active, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5)`,
		l.ID, l.ServiceID, l.Vendor, int64(l.Price), l.CreatedAt,
	)
	if isUniqueViolation(err) {
		return marketplace.ErrListingExists
	}
	return err
}

func (t *pgTx) CloseListing(ctx context.Context, listingID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE service_listings SET is_active = FALSE, closed_at = $1 WHERE id = $2 AND is_active`,
		at, listingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrListingNotActive
	}
	return nil
}

func (t *pgTx) Transfer(ctx context.Context, from, to, authority string, amount uint64, reference string) error {
	return t.ledger.Transfer(ctx, t.tx, from, to, authority, amount, reference)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
