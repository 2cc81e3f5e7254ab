package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sudo-init-do/servicehub/internal/app"
	"github.com/sudo-init-do/servicehub/internal/config"
)

// credit_wallet funds a ledger account.
// Usage:
//
//	go run ./cmd/adminutil/credit_wallet -account buyer-1 -amount 5000
func main() {
	account := flag.String("account", "", "Account to credit")
	amount := flag.Uint64("amount", 0, "Amount to credit")
	reference := flag.String("reference", "operator-credit", "Reference stored on the ledger entry")
	flag.Parse()

	if *account == "" || *amount == 0 {
		log.Fatalf("usage: go run ./cmd/adminutil/credit_wallet -account <id> -amount <n>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	backend, err := app.OpenBackend(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer backend.Close()

	t, err := backend.Ledger.Credit(ctx, *account, *amount, *reference)
	if err != nil {
		log.Fatalf("failed to credit wallet: %v", err)
	}
	balance, err := backend.Ledger.Balance(ctx, *account)
	if err != nil {
		log.Fatalf("failed to read balance: %v", err)
	}

	fmt.Printf("Credited %d to %s (tx %s). Balance: %d\n", t.Amount, *account, t.ID, balance)
}
