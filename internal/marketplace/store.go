package marketplace

import (
	"context"
	"time"
)

// Reader is the read side shared by stores and their transactions.
// Lookups that find nothing return ErrNotFound (ErrRegistryNotFound for the registry).
type Reader interface {
	Registry(ctx context.Context) (Registry, error)
	Vendor(ctx context.Context, id string) (Vendor, error)
	VendorByOwner(ctx context.Context, owner string) (Vendor, error)
	ServiceRecord(ctx context.Context, id string) (ServiceRecord, error)
	ActiveListing(ctx context.Context, serviceID string) (ServiceListing, error)
	ServicesOwnedBy(ctx context.Context, owner string) ([]ServiceRecord, error)
}

// Tx is one unit of work. Nothing done through a Tx is visible to other
// callers until InTx returns nil.
type Tx interface {
	Reader

	CreateRegistry(ctx context.Context, reg Registry) error
	CreateVendor(ctx context.Context, v Vendor) error
	CreateServiceRecord(ctx context.Context, rec ServiceRecord) error

	// LockServiceRecord loads a record and holds it until the transaction
	// ends. Every mutation of a record or its listings goes through it first.
	LockServiceRecord(ctx context.Context, id string) (ServiceRecord, error)
	SetServiceOwner(ctx context.Context, id, owner string, at time.Time) error

	// CreateListing fails with ErrListingExists if the record already has an active listing.
	CreateListing(ctx context.Context, l ServiceListing) error
	CloseListing(ctx context.Context, listingID string, at time.Time) error

	// Transfer is the ledger primitive. Failures come from the wallet package
	// and abort the enclosing transaction.
	Transfer(ctx context.Context, from, to, authority string, amount uint64, reference string) error
}

type Store interface {
	Reader
	// InTx runs fn atomically. A non-nil error from fn discards every write,
	// ledger transfers included.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Stats is an operator snapshot of the store.
type Stats struct {
	Vendors        int    `json:"vendors"`
	ServiceRecords int    `json:"service_records"`
	ActiveListings int    `json:"active_listings"`
	ClosedListings int    `json:"closed_listings"`
	LedgerTotal    uint64 `json:"ledger_total"`
}

type StatsReader interface {
	Stats(ctx context.Context) (Stats, error)
}
