package marketplace

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

const (
	CodeNameTooLong              = "NAME_TOO_LONG"
	CodeDescriptionTooLong       = "DESCRIPTION_TOO_LONG"
	CodeMetadataTooLong          = "METADATA_TOO_LONG"
	CodeInvalidRoyaltyRate       = "INVALID_ROYALTY_RATE"
	CodeRoyaltyExceedsPrice      = "ROYALTY_EXCEEDS_PRICE"
	CodeInvalidPrice             = "INVALID_PRICE"
	CodeNotOwner                 = "NOT_OWNER"
	CodeListingNotActive         = "LISTING_NOT_ACTIVE"
	CodeListingExists            = "LISTING_EXISTS"
	CodeRecordListed             = "RECORD_LISTED"
	CodeSoulboundNonTransferable = "SOULBOUND_NON_TRANSFERABLE"
	CodeRegistryExists           = "REGISTRY_EXISTS"
	CodeRegistryNotFound         = "REGISTRY_NOT_FOUND"
	CodeVendorExists             = "VENDOR_EXISTS"
	CodeRecipientRequired        = "RECIPIENT_REQUIRED"
	CodeResaleConsentMismatch    = "RESALE_CONSENT_MISMATCH"
)

type errorMapping struct {
	target   error
	category goerrors.Category
	status   int
	code     string
}

var errorMappings = []errorMapping{
	{ErrNameTooLong, goerrors.CategoryValidation, http.StatusBadRequest, CodeNameTooLong},
	{ErrDescriptionTooLong, goerrors.CategoryValidation, http.StatusBadRequest, CodeDescriptionTooLong},
	{ErrMetadataTooLong, goerrors.CategoryValidation, http.StatusBadRequest, CodeMetadataTooLong},
	{ErrInvalidRoyaltyRate, goerrors.CategoryValidation, http.StatusBadRequest, CodeInvalidRoyaltyRate},
	{ErrRoyaltyExceedsPrice, goerrors.CategoryValidation, http.StatusUnprocessableEntity, CodeRoyaltyExceedsPrice},
	{ErrInvalidPrice, goerrors.CategoryValidation, http.StatusBadRequest, CodeInvalidPrice},
	{ErrRecipientRequired, goerrors.CategoryBadInput, http.StatusBadRequest, CodeRecipientRequired},
	{ErrPrincipalRequired, goerrors.CategoryAuth, http.StatusUnauthorized, mware.CodeUnauthorized},
	{ErrNotOwner, goerrors.CategoryAuthz, http.StatusForbidden, CodeNotOwner},
	{ErrResaleConsentMismatch, goerrors.CategoryAuthz, http.StatusForbidden, CodeResaleConsentMismatch},
	{ErrSoulboundNonTransferable, goerrors.CategoryOperation, http.StatusConflict, CodeSoulboundNonTransferable},
	{ErrListingNotActive, goerrors.CategoryConflict, http.StatusConflict, CodeListingNotActive},
	{ErrListingExists, goerrors.CategoryConflict, http.StatusConflict, CodeListingExists},
	{ErrRecordListed, goerrors.CategoryConflict, http.StatusConflict, CodeRecordListed},
	{ErrRegistryExists, goerrors.CategoryConflict, http.StatusConflict, CodeRegistryExists},
	{ErrVendorExists, goerrors.CategoryConflict, http.StatusConflict, CodeVendorExists},
	{ErrRegistryNotFound, goerrors.CategoryNotFound, http.StatusNotFound, CodeRegistryNotFound},
	{ErrNotFound, goerrors.CategoryNotFound, http.StatusNotFound, mware.CodeNotFound},
}

// APIError converts a marketplace or ledger failure into the HTTP envelope.
// Unknown errors become a generic internal error so storage details never leak.
func APIError(err error) *goerrors.Error {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return mware.APIError(m.target.Error(), m.category, m.status, m.code)
		}
	}
	if apiErr := wallet.APIError(err); apiErr != nil {
		return apiErr
	}
	return mware.Internal("internal error")
}
