// Package storetest holds the behaviour every marketplace store backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

type Backend interface {
	marketplace.Store
	marketplace.StatsReader
	wallet.Ledger
}

// Run exercises newBackend against the store contract. newBackend must return
// an empty store.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("registry", func(t *testing.T) { testRegistry(t, newBackend(t)) })
	t.Run("vendors", func(t *testing.T) { testVendors(t, newBackend(t)) })
	t.Run("records and listings", func(t *testing.T) { testRecordsAndListings(t, newBackend(t)) })
	t.Run("ledger", func(t *testing.T) { testLedger(t, newBackend(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newBackend(t)) })
	t.Run("stats", func(t *testing.T) { testStats(t, newBackend(t)) })
	t.Run("concurrent purchase", func(t *testing.T) { testConcurrentPurchase(t, newBackend(t)) })
}

// now is truncated so backends storing milliseconds round-trip exactly.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func inTx(t *testing.T, s Backend, fn func(tx marketplace.Tx) error) {
	t.Helper()
	if err := s.InTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func newRecord(owner string) marketplace.ServiceRecord {
	at := now()
	return marketplace.ServiceRecord{
		ID:          uuid.New().String(),
		Vendor:      owner,
		Owner:       owner,
		Metadata:    "ipfs://record",
		Price:       1000,
		RoyaltyRate: 5,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func newListing(rec marketplace.ServiceRecord, price uint64) marketplace.ServiceListing {
	return marketplace.ServiceListing{
		ID:        uuid.New().String(),
		ServiceID: rec.ID,
		Vendor:    rec.Owner,
		Price:     price,
		IsActive:  true,
		CreatedAt: now(),
	}
}

func testRegistry(t *testing.T, s Backend) {
	ctx := context.Background()
	if _, err := s.Registry(ctx); !errors.Is(err, marketplace.ErrRegistryNotFound) {
		t.Fatalf("expected ErrRegistryNotFound on empty store, got %v", err)
	}

	reg := marketplace.Registry{Admin: "admin", Treasury: "treasury", BaseRoyaltyRate: 2, CreatedAt: now()}
	inTx(t, s, func(tx marketplace.Tx) error { return tx.CreateRegistry(ctx, reg) })

	got, err := s.Registry(ctx)
	if err != nil {
		t.Fatalf("read registry: %v", err)
	}
	if got.Admin != reg.Admin || got.Treasury != reg.Treasury || got.BaseRoyaltyRate != reg.BaseRoyaltyRate || !got.CreatedAt.Equal(reg.CreatedAt) {
		t.Errorf("expected %+v, got %+v", reg, got)
	}

	err = s.InTx(ctx, func(tx marketplace.Tx) error { return tx.CreateRegistry(ctx, reg) })
	if !errors.Is(err, marketplace.ErrRegistryExists) {
		t.Errorf("expected ErrRegistryExists, got %v", err)
	}
}

func testVendors(t *testing.T, s Backend) {
	ctx := context.Background()
	v := marketplace.Vendor{
		ID: uuid.New().String(), Owner: "vendor-1", Name: "acme", Description: "repairs",
		Active: true, CreatedAt: now(),
	}
	inTx(t, s, func(tx marketplace.Tx) error { return tx.CreateVendor(ctx, v) })

	got, err := s.Vendor(ctx, v.ID)
	if err != nil {
		t.Fatalf("read vendor: %v", err)
	}
	if got.Owner != v.Owner || got.Name != v.Name || got.Description != v.Description || !got.Active {
		t.Errorf("expected %+v, got %+v", v, got)
	}
	if got, err := s.VendorByOwner(ctx, "vendor-1"); err != nil || got.ID != v.ID {
		t.Errorf("expected vendor by owner %s, got %+v, %v", v.ID, got, err)
	}

	dup := v
	dup.ID = uuid.New().String()
	err = s.InTx(ctx, func(tx marketplace.Tx) error { return tx.CreateVendor(ctx, dup) })
	if !errors.Is(err, marketplace.ErrVendorExists) {
		t.Errorf("expected ErrVendorExists, got %v", err)
	}

	if _, err := s.Vendor(ctx, uuid.New().String()); !errors.Is(err, marketplace.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown vendor, got %v", err)
	}
	if _, err := s.Vendor(ctx, "not-a-uuid"); !errors.Is(err, marketplace.ErrNotFound) {
		t.Errorf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func testRecordsAndListings(t *testing.T, s Backend) {
	ctx := context.Background()
	rec := newRecord("vendor-1")
	inTx(t, s, func(tx marketplace.Tx) error { return tx.CreateServiceRecord(ctx, rec) })

	got, err := s.ServiceRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if got.Owner != rec.Owner || got.Price != rec.Price || got.RoyaltyRate != rec.RoyaltyRate || got.Metadata != rec.Metadata {
		t.Errorf("expected %+v, got %+v", rec, got)
	}

	if _, err := s.ActiveListing(ctx, rec.ID); !errors.Is(err, marketplace.ErrNotFound) {
		t.Fatalf("expected no listing, got %v", err)
	}
	l := newListing(rec, 700)
	inTx(t, s, func(tx marketplace.Tx) error { return tx.CreateListing(ctx, l) })

	second := newListing(rec, 800)
	err = s.InTx(ctx, func(tx marketplace.Tx) error { return tx.CreateListing(ctx, second) })
	if !errors.Is(err, marketplace.ErrListingExists) {
		t.Errorf("expected ErrListingExists, got %v", err)
	}

	active, err := s.ActiveListing(ctx, rec.ID)
	if err != nil || active.ID != l.ID || active.Price != 700 || !active.IsActive {
		t.Fatalf("expected active listing %s, got %+v, %v", l.ID, active, err)
	}

	closedAt := now()
	inTx(t, s, func(tx marketplace.Tx) error {
		if err := tx.SetServiceOwner(ctx, rec.ID, "buyer-1", closedAt); err != nil {
			return err
		}
		return tx.CloseListing(ctx, l.ID, closedAt)
	})
	if _, err := s.ActiveListing(ctx, rec.ID); !errors.Is(err, marketplace.ErrNotFound) {
		t.Errorf("expected listing closed, got %v", err)
	}
	err = s.InTx(ctx, func(tx marketplace.Tx) error { return tx.CloseListing(ctx, l.ID, closedAt) })
	if !errors.Is(err, marketplace.ErrListingNotActive) {
		t.Errorf("expected ErrListingNotActive when closing twice, got %v", err)
	}

	owned, err := s.ServicesOwnedBy(ctx, "buyer-1")
	if err != nil || len(owned) != 1 || owned[0].ID != rec.ID {
		t.Errorf("expected buyer-1 to own %s, got %+v, %v", rec.ID, owned, err)
	}
	if owned, _ := s.ServicesOwnedBy(ctx, "vendor-1"); len(owned) != 0 {
		t.Errorf("expected vendor-1 to own nothing, got %d", len(owned))
	}

	// the record can be listed again once the previous listing closed
	relist := newListing(marketplace.ServiceRecord{ID: rec.ID, Owner: "buyer-1"}, 900)
	inTx(t, s, func(tx marketplace.Tx) error { return tx.CreateListing(ctx, relist) })
}

func testLedger(t *testing.T, s Backend) {
	ctx := context.Background()
	if b, err := s.Balance(ctx, "nobody"); err != nil || b != 0 {
		t.Fatalf("expected zero balance for unknown account, got %d, %v", b, err)
	}
	if _, err := s.Credit(ctx, "alice", 0, "x"); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero credit, got %v", err)
	}
	if _, err := s.Credit(ctx, "alice", 500, "seed"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	inTx(t, s, func(tx marketplace.Tx) error {
		return tx.Transfer(ctx, "alice", "bob", "alice", 200, "ref-1")
	})
	err := s.InTx(ctx, func(tx marketplace.Tx) error {
		return tx.Transfer(ctx, "alice", "bob", "bob", 10, "ref-2")
	})
	if !errors.Is(err, wallet.ErrUnauthorizedTransfer) {
		t.Errorf("expected ErrUnauthorizedTransfer, got %v", err)
	}
	err = s.InTx(ctx, func(tx marketplace.Tx) error {
		return tx.Transfer(ctx, "alice", "bob", "alice", 301, "ref-3")
	})
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	for account, want := range map[string]uint64{"alice": 300, "bob": 200} {
		if got, _ := s.Balance(ctx, account); got != want {
			t.Errorf("expected %s balance %d, got %d", account, want, got)
		}
	}

	txs, err := s.Transactions(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 ledger entries for alice, got %d", len(txs))
	}
	var debit bool
	for _, tr := range txs {
		if tr.Type == wallet.TypeDebit && tr.Amount == 200 && tr.Reference == "ref-1" {
			debit = true
		}
	}
	if !debit {
		t.Errorf("expected a 200 debit with ref-1, got %+v", txs)
	}
}

func testRollback(t *testing.T, s Backend) {
	ctx := context.Background()
	if _, err := s.Credit(ctx, "alice", 100, "seed"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	rec := newRecord("vendor-1")
	inTx(t, s, func(tx marketplace.Tx) error { return tx.CreateServiceRecord(ctx, rec) })

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx marketplace.Tx) error {
		if err := tx.Transfer(ctx, "alice", "vendor-1", "alice", 100, "ref"); err != nil {
			return err
		}
		if err := tx.SetServiceOwner(ctx, rec.ID, "alice", now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if got, _ := s.Balance(ctx, "alice"); got != 100 {
		t.Errorf("expected alice to keep 100, got %d", got)
	}
	if got, _ := s.Balance(ctx, "vendor-1"); got != 0 {
		t.Errorf("expected vendor-1 to have 0, got %d", got)
	}
	if got, _ := s.ServiceRecord(ctx, rec.ID); got.Owner != "vendor-1" {
		t.Errorf("expected owner vendor-1 after rollback, got %s", got.Owner)
	}
}

func testStats(t *testing.T, s Backend) {
	ctx := context.Background()
	rec := newRecord("vendor-1")
	l := newListing(rec, 10)
	inTx(t, s, func(tx marketplace.Tx) error {
		if err := tx.CreateVendor(ctx, marketplace.Vendor{ID: uuid.New().String(), Owner: "vendor-1", Name: "acme", Active: true, CreatedAt: now()}); err != nil {
			return err
		}
		if err := tx.CreateServiceRecord(ctx, rec); err != nil {
			return err
		}
		return tx.CreateListing(ctx, l)
	})
	if _, err := s.Credit(ctx, "alice", 42, "seed"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := marketplace.Stats{Vendors: 1, ServiceRecords: 1, ActiveListings: 1, LedgerTotal: 42}
	if st != want {
		t.Errorf("expected %+v, got %+v", want, st)
	}
}

// testConcurrentPurchase races buyers for one listing through the service, so
// the backend's row locking decides the winner.
func testConcurrentPurchase(t *testing.T, s Backend) {
	ctx := context.Background()
	svc := marketplace.NewService(s)

	rec, err := svc.MintServiceNFT(ctx, "vendor-1", marketplace.MintParams{Price: 100})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := svc.ListService(ctx, "vendor-1", rec.ID, 100); err != nil {
		t.Fatalf("list: %v", err)
	}

	const buyers = 8
	for i := 0; i < buyers; i++ {
		if _, err := s.Credit(ctx, fmt.Sprintf("buyer-%d", i), 100, "test"); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			_, err := svc.PurchaseService(ctx, buyer, rec.ID)
			switch {
			case err == nil:
				mu.Lock()
				wins = append(wins, buyer)
				mu.Unlock()
			case !errors.Is(err, marketplace.ErrListingNotActive):
				t.Errorf("unexpected error for %s: %v", buyer, err)
			}
		}(fmt.Sprintf("buyer-%d", i))
	}
	wg.Wait()

	if len(wins) != 1 {
		t.Fatalf("expected exactly one successful purchase, got %d", len(wins))
	}
	got, err := s.ServiceRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("service record: %v", err)
	}
	if got.Owner != wins[0] {
		t.Errorf("expected winner %s to own the record, got %s", wins[0], got.Owner)
	}
	if bal, _ := s.Balance(ctx, "vendor-1"); bal != 100 {
		t.Errorf("expected vendor paid once, got %d", bal)
	}
	for i := 0; i < buyers; i++ {
		buyer := fmt.Sprintf("buyer-%d", i)
		want := uint64(100)
		if buyer == wins[0] {
			want = 0
		}
		if bal, _ := s.Balance(ctx, buyer); bal != want {
			t.Errorf("expected %s balance %d, got %d", buyer, want, bal)
		}
	}
}
