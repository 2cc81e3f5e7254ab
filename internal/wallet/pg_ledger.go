package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGLedger keeps balances in the wallets table and logs every movement in transactions.
type PGLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool, now: time.Now}
}

// Transfer moves amount inside the caller's transaction. The source wallet is
// locked FOR UPDATE so concurrent debits serialize.
func (l *PGLedger) Transfer(ctx context.Context, tx pgx.Tx, from, to, authority string, amount uint64, reference string) error {
	if err := CheckTransfer(from, to, authority, amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}

	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, from).Scan(&balance)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock wallet: %w", err)
	}
	if uint64(balance) < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, balance, amount)
	}

	now := l.now()
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = $2 WHERE user_id = $3`,
		int64(amount), now, from,
	); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if err := addToWallet(ctx, tx, to, amount, now); err != nil {
		return err
	}
	if err := logTransaction(ctx, tx, from, amount, TypeDebit, reference, now); err != nil {
		return err
	}
	return logTransaction(ctx, tx, to, amount, TypeCredit, reference, now)
}

// Credit funds an account from outside the ledger (operator top-up).
func (l *PGLedger) Credit(ctx context.Context, account string, amount uint64, reference string) (Transaction, error) {
	if err := CheckCredit(account, amount); err != nil {
		return Transaction{}, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := l.now()
	if err := addToWallet(ctx, tx, account, amount, now); err != nil {
		return Transaction{}, err
	}
	t := Transaction{
		ID:        uuid.New().String(),
		UserID:    account,
		Amount:    amount,
		Type:      TypeCredit,
		Status:    StatusCompleted,
		Reference: reference,
		CreatedAt: now,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, amount, type, status, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, int64(t.Amount), t.Type, t.Status, t.Reference, t.CreatedAt,
	); err != nil {
		return Transaction{}, fmt.Errorf("record credit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// Balance is zero for accounts that never received funds.
func (l *PGLedger) Balance(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, account).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

func (l *PGLedger) Transactions(ctx context.Context, account string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id::text, user_id, amount, type, status, reference, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var (
			t      Transaction
			amount int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &amount, &t.Type, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Amount = uint64(amount)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func addToWallet(ctx context.Context, q DBTX, account string, amount uint64, at time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = wallets.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		account, int64(amount), at,
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

func logTransaction(ctx context.Context, q DBTX, account string, amount uint64, typ, reference string, at time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (id, user_id, amount, type, status, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), account, int64(amount), typ, StatusCompleted, reference, at,
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", typ, err)
	}
	return nil
}
