// Package memstore keeps the marketplace and its ledger in process memory.
// Transactions are serialized by one mutex and applied by swapping in a
// modified copy of the state, so a failed transaction leaves nothing behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

var (
	_ marketplace.Store = (*Store)(nil)
	_ wallet.Ledger     = (*Store)(nil)
)

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) InTx(ctx context.Context, fn func(tx marketplace.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{state: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Registry(ctx context.Context) (marketplace.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Registry(ctx)
}

func (s *Store) Vendor(ctx context.Context, id string) (marketplace.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Vendor(ctx, id)
}

func (s *Store) VendorByOwner(ctx context.Context, owner string) (marketplace.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.VendorByOwner(ctx, owner)
}

func (s *Store) ServiceRecord(ctx context.Context, id string) (marketplace.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ServiceRecord(ctx, id)
}

func (s *Store) ActiveListing(ctx context.Context, serviceID string) (marketplace.ServiceListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ActiveListing(ctx, serviceID)
}

func (s *Store) ServicesOwnedBy(ctx context.Context, owner string) ([]marketplace.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ServicesOwnedBy(ctx, owner)
}

// Stats counts stored entities; used by the admin stats endpoint.
func (s *Store) Stats(context.Context) (marketplace.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := marketplace.Stats{
		Vendors:        len(s.st.vendors),
		ServiceRecords: len(s.st.records),
		ActiveListings: len(s.st.activeListing),
	}
	for _, l := range s.st.listings {
		if !l.IsActive {
			st.ClosedListings++
		}
	}
	for _, b := range s.st.balances {
		st.LedgerTotal += b
	}
	return st, nil
}

// Credit funds an account outside any marketplace transaction.
func (s *Store) Credit(_ context.Context, account string, amount uint64, reference string) (wallet.Transaction, error) {
	if err := wallet.CheckCredit(account, amount); err != nil {
		return wallet.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.balances[account] > wallet.MaxAmount-amount {
		return wallet.Transaction{}, fmt.Errorf("%w: balance overflow", wallet.ErrInvalidAmount)
	}
	s.st.balances[account] += amount
	return s.st.log(account, amount, wallet.TypeCredit, reference, s.now()), nil
}

func (s *Store) Balance(_ context.Context, account string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.balances[account], nil
}

func (s *Store) Transactions(_ context.Context, account string, limit int) ([]wallet.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []wallet.Transaction{}
	for i := len(s.st.txlog) - 1; i >= 0 && len(out) < limit; i-- {
		if t := s.st.txlog[i]; t.UserID == account {
			out = append(out, t)
		}
	}
	return out, nil
}

type state struct {
	registry      *marketplace.Registry
	vendors       map[string]marketplace.Vendor
	vendorByOwner map[string]string
	records       map[string]marketplace.ServiceRecord
	listings      map[string]marketplace.ServiceListing
	activeListing map[string]string // service id -> listing id
	balances      map[string]uint64
	txlog         []wallet.Transaction
}

func newState() *state {
	return &state{
		vendors:       map[string]marketplace.Vendor{},
		vendorByOwner: map[string]string{},
		records:       map[string]marketplace.ServiceRecord{},
		listings:      map[string]marketplace.ServiceListing{},
		activeListing: map[string]string{},
		balances:      map[string]uint64{},
	}
}

func (st *state) clone() *state {
	c := &state{
		vendors:       make(map[string]marketplace.Vendor, len(st.vendors)),
		vendorByOwner: make(map[string]string, len(st.vendorByOwner)),
		records:       make(map[string]marketplace.ServiceRecord, len(st.records)),
		listings:      make(map[string]marketplace.ServiceListing, len(st.listings)),
		activeListing: make(map[string]string, len(st.activeListing)),
		balances:      make(map[string]uint64, len(st.balances)),
		txlog:         append([]wallet.Transaction(nil), st.txlog...),
	}
	if st.registry != nil {
		reg := *st.registry
		c.registry = &reg
	}
	for k, v := range st.vendors {
		c.vendors[k] = v
	}
	for k, v := range st.vendorByOwner {
		c.vendorByOwner[k] = v
	}
	for k, v := range st.records {
		c.records[k] = v
	}
	for k, v := range st.listings {
		c.listings[k] = v
	}
	for k, v := range st.activeListing {
		c.activeListing[k] = v
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	return c
}

func (st *state) log(account string, amount uint64, typ, reference string, at time.Time) wallet.Transaction {
	t := wallet.Transaction{
		ID:        uuid.New().String(),
		UserID:    account,
		Amount:    amount,
		Type:      typ,
		Status:    wallet.StatusCompleted,
		Reference: reference,
		CreatedAt: at,
	}
	st.txlog = append(st.txlog, t)
	return t
}

func (st *state) Registry(context.Context) (marketplace.Registry, error) {
	if st.registry == nil {
		return marketplace.Registry{}, marketplace.ErrRegistryNotFound
	}
	return *st.registry, nil
}

func (st *state) Vendor(_ context.Context, id string) (marketplace.Vendor, error) {
	v, ok := st.vendors[id]
	if !ok {
		return marketplace.Vendor{}, marketplace.ErrNotFound
	}
	return v, nil
}

func (st *state) VendorByOwner(ctx context.Context, owner string) (marketplace.Vendor, error) {
	id, ok := st.vendorByOwner[owner]
	if !ok {
		return marketplace.Vendor{}, marketplace.ErrNotFound
	}
	return st.Vendor(ctx, id)
}

func (st *state) ServiceRecord(_ context.Context, id string) (marketplace.ServiceRecord, error) {
	rec, ok := st.records[id]
	if !ok {
		return marketplace.ServiceRecord{}, marketplace.ErrNotFound
	}
	return rec, nil
}

func (st *state) ActiveListing(_ context.Context, serviceID string) (marketplace.ServiceListing, error) {
	id, ok := st.activeListing[serviceID]
	if !ok {
		return marketplace.ServiceListing{}, marketplace.ErrNotFound
	}
	return st.listings[id], nil
}

func (st *state) ServicesOwnedBy(_ context.Context, owner string) ([]marketplace.ServiceRecord, error) {
	out := []marketplace.ServiceRecord{}
	for _, rec := range st.records {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memTx struct {
	*state
	now func() time.Time
}

func (tx *memTx) CreateRegistry(_ context.Context, reg marketplace.Registry) error {
	if tx.registry != nil {
		return marketplace.ErrRegistryExists
	}
	tx.registry = &reg
	return nil
}

func (tx *memTx) CreateVendor(_ context.Context, v marketplace.Vendor) error {
	if _, ok := tx.vendorByOwner[v.Owner]; ok {
		return marketplace.ErrVendorExists
	}
	tx.vendors[v.ID] = v
	tx.vendorByOwner[v.Owner] = v.ID
	return nil
}

func (tx *memTx) CreateServiceRecord(_ context.Context, rec marketplace.ServiceRecord) error {
	tx.records[rec.ID] = rec
	return nil
}

// LockServiceRecord is a plain read; the store mutex already serializes transactions.
func (tx *memTx) LockServiceRecord(ctx context.Context, id string) (marketplace.ServiceRecord, error) {
	return tx.ServiceRecord(ctx, id)
}

func (tx *memTx) SetServiceOwner(_ context.Context, id, owner string, at time.Time) error {
	rec, ok := tx.records[id]
	if !ok {
		return marketplace.ErrNotFound
	}
	rec.Owner = owner
	rec.UpdatedAt = at
	tx.records[id] = rec
	return nil
}

func (tx *memTx) CreateListing(_ context.Context, l marketplace.ServiceListing) error {
	if _, ok := tx.activeListing[l.ServiceID]; ok {
		return marketplace.ErrListingExists
	}
	tx.listings[l.ID] = l
	tx.activeListing[l.ServiceID] = l.ID
	return nil
}

func (tx *memTx) CloseListing(_ context.Context, listingID string, at time.Time) error {
	l, ok := tx.listings[listingID]
	if !ok || !l.IsActive {
		return marketplace.ErrListingNotActive
	}
	l.IsActive = false
	l.ClosedAt = &at
	tx.listings[listingID] = l
	delete(tx.activeListing, l.ServiceID)
	return nil
}

func (tx *memTx) Transfer(_ context.Context, from, to, authority string, amount uint64, reference string) error {
	if err := wallet.CheckTransfer(from, to, authority, amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if bal := tx.balances[from]; bal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", wallet.ErrInsufficientFunds, from, bal, amount)
	}
	tx.balances[from] -= amount
	if tx.balances[to] > wallet.MaxAmount-amount {
		return fmt.Errorf("%w: balance overflow", wallet.ErrInvalidAmount)
	}
	tx.balances[to] += amount

	now := tx.now()
	tx.log(from, amount, wallet.TypeDebit, reference, now)
	tx.log(to, amount, wallet.TypeCredit, reference, now)
	return nil
}
