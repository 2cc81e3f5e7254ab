package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

// MaxPrice keeps amounts representable in a signed 64-bit column.
const MaxPrice = math.MaxInt64

// Service runs the marketplace operations. Every mutating method takes the
// principal(s) that signed the call; authentication happens before it.
type Service struct {
	store  Store
	sink   EventSink
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		sink:   nopSink{},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =========================
// Registry & Vendor Directory
// =========================

// InitializeMarketplace creates the registry singleton. The treasury defaults to the admin.
func (s *Service) InitializeMarketplace(ctx context.Context, admin string, p InitParams) (Registry, error) {
	if admin == "" {
		return Registry{}, ErrPrincipalRequired
	}
	if p.BaseRoyaltyRate > MaxRoyaltyRate {
		return Registry{}, ErrInvalidRoyaltyRate
	}
	reg := Registry{
		Admin:           admin,
		Treasury:        p.Treasury,
		BaseRoyaltyRate: p.BaseRoyaltyRate,
		CreatedAt:       s.now(),
	}
	if reg.Treasury == "" {
		reg.Treasury = admin
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		return tx.CreateRegistry(ctx, reg)
	})
	if err != nil {
		return Registry{}, err
	}
	s.logger.InfoContext(ctx, "marketplace initialized",
		"admin", reg.Admin, "treasury", reg.Treasury, "base_royalty_rate", reg.BaseRoyaltyRate)
	return reg, nil
}

// RegisterVendor binds a new vendor profile to owner. Lengths are counted in bytes.
func (s *Service) RegisterVendor(ctx context.Context, owner, name, description string) (Vendor, error) {
	if owner == "" {
		return Vendor{}, ErrPrincipalRequired
	}
	if len(name) > MaxNameLength {
		return Vendor{}, ErrNameTooLong
	}
	if len(description) > MaxDescriptionLength {
		return Vendor{}, ErrDescriptionTooLong
	}
	v := Vendor{
		ID:          s.newID(),
		Owner:       owner,
		Name:        name,
		Description: description,
		Active:      true,
		CreatedAt:   s.now(),
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		return tx.CreateVendor(ctx, v)
	})
	if err != nil {
		return Vendor{}, err
	}
	s.logger.InfoContext(ctx, "vendor registered", "vendor_id", v.ID, "owner", owner)
	return v, nil
}

// =========================
// Service records
// =========================

// MintServiceNFT creates a record owned by the minting vendor.
func (s *Service) MintServiceNFT(ctx context.Context, vendor string, p MintParams) (ServiceRecord, error) {
	if vendor == "" {
		return ServiceRecord{}, ErrPrincipalRequired
	}
	if p.RoyaltyRate > MaxRoyaltyRate {
		return ServiceRecord{}, ErrInvalidRoyaltyRate
	}
	if len(p.Metadata) > MaxMetadataLength {
		return ServiceRecord{}, ErrMetadataTooLong
	}
	if p.Price > MaxPrice {
		return ServiceRecord{}, ErrInvalidPrice
	}
	now := s.now()
	rec := ServiceRecord{
		ID:          s.newID(),
		Vendor:      vendor,
		Owner:       vendor,
		Metadata:    p.Metadata,
		Price:       p.Price,
		IsSoulbound: p.IsSoulbound,
		RoyaltyRate: p.RoyaltyRate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		return tx.CreateServiceRecord(ctx, rec)
	})
	if err != nil {
		return ServiceRecord{}, err
	}
	s.logger.InfoContext(ctx, "service minted",
		"service_id", rec.ID, "vendor", vendor, "soulbound", rec.IsSoulbound)
	return rec, nil
}

// =========================
// Listing Manager
// =========================

// ListService opens a sale offer for a record owned by caller.
func (s *Service) ListService(ctx context.Context, caller, serviceID string, price uint64) (ServiceListing, error) {
	if caller == "" {
		return ServiceListing{}, ErrPrincipalRequired
	}
	if price > MaxPrice {
		return ServiceListing{}, ErrInvalidPrice
	}

	var listing ServiceListing
	err := s.store.InTx(ctx, func(tx Tx) error {
		rec, err := tx.LockServiceRecord(ctx, serviceID)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return ErrNotOwner
		}
		if _, err := tx.ActiveListing(ctx, serviceID); err == nil {
			return ErrListingExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		listing = ServiceListing{
			ID:        s.newID(),
			ServiceID: serviceID,
			Vendor:    caller,
			Price:     price,
			IsActive:  true,
			CreatedAt: s.now(),
		}
		return tx.CreateListing(ctx, listing)
	})
	if err != nil {
		return ServiceListing{}, err
	}
	s.logger.InfoContext(ctx, "service listed",
		"service_id", serviceID, "listing_id", listing.ID, "price", price)
	return listing, nil
}

// =========================
// Purchase Protocol
// =========================

// PurchaseService pays the lister and closes the listing. Ownership moves to
// buyer unless the record is soulbound.
func (s *Service) PurchaseService(ctx context.Context, buyer, serviceID string) (ServiceListing, error) {
	if buyer == "" {
		return ServiceListing{}, ErrPrincipalRequired
	}

	var listing ServiceListing
	err := s.store.InTx(ctx, func(tx Tx) error {
		rec, err := tx.LockServiceRecord(ctx, serviceID)
		if err != nil {
			return err
		}
		listing, err = tx.ActiveListing(ctx, serviceID)
		if errors.Is(err, ErrNotFound) {
			return ErrListingNotActive
		}
		if err != nil {
			return err
		}

		// payment first: a failed transfer leaves the listing and owner untouched
		if err := tx.Transfer(ctx, buyer, listing.Vendor, buyer, listing.Price, listing.ID); err != nil {
			return err
		}

		now := s.now()
		if !rec.IsSoulbound {
			if err := tx.SetServiceOwner(ctx, rec.ID, buyer, now); err != nil {
				return err
			}
		}
		if err := tx.CloseListing(ctx, listing.ID, now); err != nil {
			return err
		}
		listing.IsActive = false
		listing.ClosedAt = &now
		return nil
	})
	if err != nil {
		return ServiceListing{}, err
	}

	s.logger.InfoContext(ctx, "service purchased",
		"service_id", serviceID, "listing_id", listing.ID, "buyer", buyer, "seller", listing.Vendor, "price", listing.Price)
	s.publish(ctx, EventServicePurchased, ServicePurchased{
		Buyer:     buyer,
		Seller:    listing.Vendor,
		ServiceID: serviceID,
		ListingID: listing.ID,
		Price:     listing.Price,
	})
	return listing, nil
}

// =========================
// Transfer
// =========================

// TransferServiceNFT moves ownership without payment.
func (s *Service) TransferServiceNFT(ctx context.Context, currentOwner, serviceID, newOwner string) (ServiceRecord, error) {
	if currentOwner == "" {
		return ServiceRecord{}, ErrPrincipalRequired
	}
	if newOwner == "" {
		return ServiceRecord{}, ErrRecipientRequired
	}

	var rec ServiceRecord
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.LockServiceRecord(ctx, serviceID)
		if err != nil {
			return err
		}
		if err := checkTransferable(ctx, tx, rec, currentOwner); err != nil {
			return err
		}
		rec.Owner = newOwner
		rec.UpdatedAt = s.now()
		return tx.SetServiceOwner(ctx, rec.ID, newOwner, rec.UpdatedAt)
	})
	if err != nil {
		return ServiceRecord{}, err
	}

	s.logger.InfoContext(ctx, "service transferred",
		"service_id", serviceID, "from", currentOwner, "to", newOwner)
	s.publish(ctx, EventServiceNftTransferred, ServiceNftTransferred{
		ServiceID: serviceID,
		From:      currentOwner,
		To:        newOwner,
	})
	return rec, nil
}

// =========================
// Resale Protocol
// =========================

// ResellServiceNFT sells a record from seller to buyer at newPrice. The buyer
// pays the seller, the treasury and the minting vendor inside one transaction.
func (s *Service) ResellServiceNFT(ctx context.Context, seller, buyer, serviceID string, newPrice uint64) (RoyaltySplit, error) {
	if seller == "" || buyer == "" {
		return RoyaltySplit{}, ErrPrincipalRequired
	}
	if newPrice > MaxPrice {
		return RoyaltySplit{}, ErrInvalidPrice
	}

	var (
		split RoyaltySplit
		rec   ServiceRecord
		reg   Registry
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		reg, err = tx.Registry(ctx)
		if err != nil {
			return err
		}
		rec, err = tx.LockServiceRecord(ctx, serviceID)
		if err != nil {
			return err
		}
		if err := checkTransferable(ctx, tx, rec, seller); err != nil {
			return err
		}

		split, err = SplitResale(newPrice, reg.BaseRoyaltyRate, rec.RoyaltyRate)
		if err != nil {
			return err
		}

		ref := "resale:" + rec.ID
		if err := tx.Transfer(ctx, buyer, seller, buyer, split.NetToSeller, ref); err != nil {
			return fmt.Errorf("pay seller: %w", err)
		}
		if err := tx.Transfer(ctx, buyer, reg.Treasury, buyer, split.BaseRoyalty, ref); err != nil {
			return fmt.Errorf("pay base royalty: %w", err)
		}
		if err := tx.Transfer(ctx, buyer, rec.Vendor, buyer, split.VendorRoyalty, ref); err != nil {
			return fmt.Errorf("pay vendor royalty: %w", err)
		}

		return tx.SetServiceOwner(ctx, rec.ID, buyer, s.now())
	})
	if err != nil {
		return RoyaltySplit{}, err
	}

	s.logger.InfoContext(ctx, "service resold",
		"service_id", serviceID, "from", seller, "to", buyer, "price", newPrice,
		"base_royalty", split.BaseRoyalty, "vendor_royalty", split.VendorRoyalty)
	s.publish(ctx, EventServiceNftResold, ServiceNftResold{
		ServiceID:     serviceID,
		From:          seller,
		To:            buyer,
		Price:         split.Price,
		BaseRoyalty:   split.BaseRoyalty,
		VendorRoyalty: split.VendorRoyalty,
		NetToSeller:   split.NetToSeller,
		Vendor:        rec.Vendor,
		Treasury:      reg.Treasury,
	})
	return split, nil
}

// checkTransferable is shared by transfer and resale. Soulbound wins over ownership.
func checkTransferable(ctx context.Context, tx Tx, rec ServiceRecord, caller string) error {
	if rec.IsSoulbound {
		return ErrSoulboundNonTransferable
	}
	if rec.Owner != caller {
		return ErrNotOwner
	}
	if _, err := tx.ActiveListing(ctx, rec.ID); err == nil {
		return ErrRecordListed
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// publish runs after commit. The change is durable by then, so a client that
// hangs up must not cancel delivery.
func (s *Service) publish(ctx context.Context, typ string, data any) {
	ctx = context.WithoutCancel(ctx)
	evt := Event{Type: typ, OccurredAt: s.now(), Data: data}
	if err := s.sink.Publish(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "type", typ, "error", err)
	}
}

// =========================
// Reads
// =========================

func (s *Service) Registry(ctx context.Context) (Registry, error) {
	return s.store.Registry(ctx)
}

func (s *Service) Vendor(ctx context.Context, id string) (Vendor, error) {
	return s.store.Vendor(ctx, id)
}

func (s *Service) VendorByOwner(ctx context.Context, owner string) (Vendor, error) {
	return s.store.VendorByOwner(ctx, owner)
}

func (s *Service) ServiceRecord(ctx context.Context, id string) (ServiceRecord, error) {
	return s.store.ServiceRecord(ctx, id)
}

func (s *Service) ActiveListing(ctx context.Context, serviceID string) (ServiceListing, error) {
	return s.store.ActiveListing(ctx, serviceID)
}

func (s *Service) ServicesOwnedBy(ctx context.Context, owner string) ([]ServiceRecord, error) {
	return s.store.ServicesOwnedBy(ctx, owner)
}
