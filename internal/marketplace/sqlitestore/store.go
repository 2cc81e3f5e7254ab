// Package sqlitestore persists the marketplace and its ledger in SQLite for
// single-node deployments. One connection is kept open, so transactions are
// fully serialized.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

var (
	_ marketplace.Store = (*Store)(nil)
	_ wallet.Ledger     = (*Store)(nil)
)

type Store struct {
	reader
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{reader: reader{q: sqlDB}, sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) InTx(ctx context.Context, fn func(tx marketplace.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{reader: reader{q: tx}, tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (marketplace.Stats, error) {
	var (
		st    marketplace.Stats
		total int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM vendors),
			(SELECT COUNT(*) FROM service_records),
			(SELECT COUNT(*) FROM service_listings WHERE is_active = 1),
			(SELECT COUNT(*) FROM service_listings WHERE is_active = 0),
			(SELECT COALESCE(SUM(balance), 0) FROM wallets)`,
	).Scan(&st.Vendors, &st.ServiceRecords, &st.ActiveListings, &st.ClosedListings, &total)
	if err != nil {
		return marketplace.Stats{}, err
	}
	st.LedgerTotal = uint64(total)
	return st, nil
}

// =========================
// Ledger
// =========================

func (s *Store) Credit(ctx context.Context, account string, amount uint64, reference string) (wallet.Transaction, error) {
	if err := wallet.CheckCredit(account, amount); err != nil {
		return wallet.Transaction{}, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return wallet.Transaction{}, fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if err := addToWallet(ctx, tx, account, amount, now); err != nil {
		return wallet.Transaction{}, err
	}
	t, err := logTransaction(ctx, tx, account, amount, wallet.TypeCredit, reference, now)
	if err != nil {
		return wallet.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return wallet.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (s *Store) Balance(ctx context.Context, account string) (uint64, error) {
	return balanceOf(ctx, s.sqlDB, account)
}

func (s *Store) Transactions(ctx context.Context, account string, limit int) ([]wallet.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, amount, type, status, reference, created_at
		 FROM transactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []wallet.Transaction{}
	for rows.Next() {
		var (
			t         wallet.Transaction
			amount    int64
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &amount, &t.Type, &t.Status, &t.Reference, &createdAt); err != nil {
			return nil, err
		}
		t.Amount = uint64(amount)
		t.CreatedAt = fromMillis(createdAt)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balanceOf(ctx context.Context, q queryer, account string) (uint64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, account).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

func addToWallet(ctx context.Context, q queryer, account string, amount uint64, at time.Time) error {
	current, err := balanceOf(ctx, q, account)
	if err != nil {
		return err
	}
	if current > wallet.MaxAmount-amount {
		return fmt.Errorf("%w: balance overflow", wallet.ErrInvalidAmount)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = wallets.balance + excluded.balance, updated_at = excluded.updated_at`,
		account, int64(amount), toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

func logTransaction(ctx context.Context, q queryer, account string, amount uint64, typ, reference string, at time.Time) (wallet.Transaction, error) {
	t := wallet.Transaction{
		ID:        uuid.New().String(),
		UserID:    account,
		Amount:    amount,
		Type:      typ,
		Status:    wallet.StatusCompleted,
		Reference: reference,
		CreatedAt: at.UTC().Truncate(time.Millisecond),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, amount, type, status, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, int64(t.Amount), t.Type, t.Status, t.Reference, toMillis(at),
	)
	if err != nil {
		return wallet.Transaction{}, fmt.Errorf("record %s: %w", typ, err)
	}
	return t, nil
}

// =========================
// Reads
// =========================

type reader struct {
	q queryer
}

func (r reader) Registry(ctx context.Context) (marketplace.Registry, error) {
	var (
		reg       marketplace.Registry
		rate      int64
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT admin, treasury, base_royalty_rate, created_at FROM marketplace_registry WHERE singleton = 1`,
	).Scan(&reg.Admin, &reg.Treasury, &rate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return marketplace.Registry{}, marketplace.ErrRegistryNotFound
	}
	if err != nil {
		return marketplace.Registry{}, err
	}
	reg.BaseRoyaltyRate = uint8(rate)
	reg.CreatedAt = fromMillis(createdAt)
	return reg, nil
}

const vendorColumns = `id, owner, name, description, active, created_at`

func scanVendor(row *sql.Row) (marketplace.Vendor, error) {
	var (
		v         marketplace.Vendor
		createdAt int64
	)
	err := row.Scan(&v.ID, &v.Owner, &v.Name, &v.Description, &v.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return marketplace.Vendor{}, marketplace.ErrNotFound
	}
	if err != nil {
		return marketplace.Vendor{}, err
	}
	v.CreatedAt = fromMillis(createdAt)
	return v, nil
}

func (r reader) Vendor(ctx context.Context, id string) (marketplace.Vendor, error) {
	return scanVendor(r.q.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = ?`, id))
}

func (r reader) VendorByOwner(ctx context.Context, owner string) (marketplace.Vendor, error) {
	return scanVendor(r.q.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE owner = ?`, owner))
}

const recordColumns = `id, vendor, owner, metadata, price, is_soulbound, royalty_rate, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (marketplace.ServiceRecord, error) {
	var (
		rec                  marketplace.ServiceRecord
		price, rate          int64
		createdAt, updatedAt int64
	)
	err := row.Scan(&rec.ID, &rec.Vendor, &rec.Owner, &rec.Metadata, &price,
		&rec.IsSoulbound, &rate, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return marketplace.ServiceRecord{}, marketplace.ErrNotFound
	}
	if err != nil {
		return marketplace.ServiceRecord{}, err
	}
	rec.Price = uint64(price)
	rec.RoyaltyRate = uint8(rate)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

func (r reader) ServiceRecord(ctx context.Context, id string) (marketplace.ServiceRecord, error) {
	return scanRecord(r.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM service_records WHERE id = ?`, id))
}

func (r reader) ServicesOwnedBy(ctx context.Context, owner string) ([]marketplace.ServiceRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM service_records WHERE owner = ? ORDER BY created_at, id`, owner)
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
	var (
		l         marketplace.ServiceListing
		price     int64
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, service_id, vendor, price, is_active, created_at
		 FROM service_listings
		 WHERE service_id = ? AND is_active = 1`,
		serviceID,
	).Scan(&l.ID, &l.ServiceID, &l.Vendor, &price, &l.IsActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return marketplace.ServiceListing{}, marketplace.ErrNotFound
	}
	if err != nil {
		return marketplace.ServiceListing{}, err
	}
	l.Price = uint64(price)
	l.CreatedAt = fromMillis(createdAt)
	return l, nil
}

// =========================
// Writes
// =========================

type sqliteTx struct {
	reader
	tx  *sql.Tx
	now func() time.Time
}

func (t *sqliteTx) CreateRegistry(ctx context.Context, reg marketplace.Registry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO marketplace_registry (singleton, admin, treasury, base_royalty_rate, created_at)
		 VALUES (1, ?, ?, ?, ?)`,
		reg.Admin, reg.Treasury, int64(reg.BaseRoyaltyRate), toMillis(reg.CreatedAt),
	)
	if isUniqueViolation(err) {
		return marketplace.ErrRegistryExists
	}
	return err
}

func (t *sqliteTx) CreateVendor(ctx context.Context, v marketplace.Vendor) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO vendors (id, owner, name, description, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.Owner, v.Name, v.Description, v.Active, toMillis(v.CreatedAt),
	)
	if isUniqueViolation(err) {
		return marketplace.ErrVendorExists
	}
	return err
}

func (t *sqliteTx) CreateServiceRecord(ctx context.Context, rec marketplace.ServiceRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO service_records (id, vendor, owner, metadata, price, is_soulbound, royalty_rate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Vendor, rec.Owner, rec.Metadata, int64(rec.Price), rec.IsSoulbound,
		int64(rec.RoyaltyRate), toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	return err
}

// LockServiceRecord is a plain read: the single connection already serializes writers.
func (t *sqliteTx) LockServiceRecord(ctx context.Context, id string) (marketplace.ServiceRecord, error) {
	return t.ServiceRecord(ctx, id)
}

func (t *sqliteTx) SetServiceOwner(ctx context.Context, id, owner string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE service_records SET owner = ?, updated_at = ? WHERE id = ?`, owner, toMillis(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return marketplace.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) CreateListing(ctx context.Context, l marketplace.ServiceListing) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO service_listings (id, service_id, vendor, price, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		l.ID, l.ServiceID, l.Vendor, int64(l.Price), toMillis(l.CreatedAt),
	)
	if isUniqueViolation(err) {
		return marketplace.ErrListingExists
	}
	return err
}

func (t *sqliteTx) CloseListing(ctx context.Context, listingID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE service_listings SET is_active = 0, closed_at = ? WHERE id = ? AND is_active = 1`,
		toMillis(at), listingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return marketplace.ErrListingNotActive
	}
	return nil
}

func (t *sqliteTx) Transfer(ctx context.Context, from, to, authority string, amount uint64, reference string) error {
	if err := wallet.CheckTransfer(from, to, authority, amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	balance, err := balanceOf(ctx, t.tx, from)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", wallet.ErrInsufficientFunds, from, balance, amount)
	}

	now := t.now()
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - ?, updated_at = ? WHERE user_id = ?`,
		int64(amount), toMillis(now), from,
	); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if err := addToWallet(ctx, t.tx, to, amount, now); err != nil {
		return err
	}
	if _, err := logTransaction(ctx, t.tx, from, amount, wallet.TypeDebit, reference, now); err != nil {
		return err
	}
	_, err = logTransaction(ctx, t.tx, to, amount, wallet.TypeCredit, reference, now)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
