package marketplace

import "errors"

var (
	ErrNameTooLong              = errors.New("name must be 50 characters or less")
	ErrDescriptionTooLong       = errors.New("description must be 100 characters or less")
	ErrMetadataTooLong          = errors.New("metadata must be 256 characters or less")
	ErrInvalidRoyaltyRate       = errors.New("royalty rate must be between 0 and 100")
	ErrRoyaltyExceedsPrice      = errors.New("combined royalty rates exceed 100 percent")
	ErrInvalidPrice             = errors.New("price out of range")
	ErrNotOwner                 = errors.New("caller is not the owner")
	ErrListingNotActive         = errors.New("listing is not active")
	ErrListingExists            = errors.New("service already has an active listing")
	ErrRecordListed             = errors.New("service has an active listing")
	ErrSoulboundNonTransferable = errors.New("soulbound service cannot be transferred")
	ErrRegistryExists           = errors.New("marketplace already initialized")
	ErrRegistryNotFound         = errors.New("marketplace not initialized")
	ErrVendorExists             = errors.New("vendor already registered")
	ErrPrincipalRequired        = errors.New("signing principal required")
	ErrRecipientRequired        = errors.New("recipient required")
	ErrNotFound                 = errors.New("not found")
	ErrResaleConsentMismatch    = errors.New("seller consent does not match this resale")
)
