package wallet

import (
	"context"
	"errors"
	"math"
	"time"
)

// MaxAmount is the largest balance or transfer the ledger accepts.
const MaxAmount = math.MaxInt64

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrUnauthorizedTransfer = errors.New("transfer not authorized by source account")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidAccount       = errors.New("invalid account")
)

const (
	TypeDebit  = "debit"
	TypeCredit = "credit"

	StatusCompleted = "completed"
)

type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   uint64    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is one side of a ledger movement. A transfer writes a debit and a credit row.
type Transaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    uint64    `json:"amount"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger is the account-facing side of the ledger. Transfers only happen
// inside a marketplace store transaction.
type Ledger interface {
	Credit(ctx context.Context, account string, amount uint64, reference string) (Transaction, error)
	Balance(ctx context.Context, account string) (uint64, error)
	Transactions(ctx context.Context, account string, limit int) ([]Transaction, error)
}

// CheckTransfer holds the rules every ledger backend applies before moving funds.
// The authority must be the source account.
func CheckTransfer(from, to, authority string, amount uint64) error {
	if from == "" || to == "" {
		return ErrInvalidAccount
	}
	if authority != from {
		return ErrUnauthorizedTransfer
	}
	if amount > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

func CheckCredit(account string, amount uint64) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if amount == 0 || amount > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}
