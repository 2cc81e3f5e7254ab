package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sudo-init-do/servicehub/internal/app"
	"github.com/sudo-init-do/servicehub/internal/config"
	"github.com/sudo-init-do/servicehub/internal/marketplace"
)

// init_marketplace creates the registry singleton.
// Usage:
//
//	go run ./cmd/adminutil/init_marketplace -admin ops-1 -base-royalty 2 [-treasury treasury-acct]
func main() {
	admin := flag.String("admin", "", "Principal recorded as marketplace admin")
	rate := flag.Uint("base-royalty", 0, "Base royalty rate in percent (0-100)")
	treasury := flag.String("treasury", "", "Account receiving base royalties (defaults to admin)")
	flag.Parse()

	if *admin == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/init_marketplace -admin <principal> -base-royalty <0-100>")
	}
	if *rate > marketplace.MaxRoyaltyRate {
		log.Fatalf("base royalty must be between 0 and 100, got %d", *rate)
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

	svc := marketplace.NewService(backend.Store)
	reg, err := svc.InitializeMarketplace(ctx, *admin, marketplace.InitParams{
		BaseRoyaltyRate: uint8(*rate),
		Treasury:        *treasury,
	})
	if err != nil {
		log.Fatalf("failed to initialize marketplace: %v", err)
	}

	fmt.Printf("Marketplace initialized: admin=%s treasury=%s base_royalty=%d%%\n",
		reg.Admin, reg.Treasury, reg.BaseRoyaltyRate)
}
