package marketplace

import "math/bits"

// RoyaltySplit is how a resale price is divided between the seller, the
// marketplace treasury and the originating vendor.
type RoyaltySplit struct {
	Price         uint64 `json:"price"`
	BaseRoyalty   uint64 `json:"base_royalty"`
	VendorRoyalty uint64 `json:"vendor_royalty"`
	NetToSeller   uint64 `json:"net_to_seller"`
}

// SplitResale floors each royalty independently, so the seller absorbs at most
// two units of truncation. Rates summing above 100 are rejected.
func SplitResale(price uint64, baseRate, vendorRate uint8) (RoyaltySplit, error) {
	if baseRate > MaxRoyaltyRate || vendorRate > MaxRoyaltyRate {
		return RoyaltySplit{}, ErrInvalidRoyaltyRate
	}
	if uint16(baseRate)+uint16(vendorRate) > MaxRoyaltyRate {
		return RoyaltySplit{}, ErrRoyaltyExceedsPrice
	}

	base := percentOf(price, baseRate)
	vendor := percentOf(price, vendorRate)
	total := base + vendor
	if total > price {
		return RoyaltySplit{}, ErrRoyaltyExceedsPrice
	}

	return RoyaltySplit{
		Price:         price,
		BaseRoyalty:   base,
		VendorRoyalty: vendor,
		NetToSeller:   price - total,
	}, nil
}

// percentOf returns floor(amount * rate / 100) using a 128-bit intermediate.
func percentOf(amount uint64, rate uint8) uint64 {
	hi, lo := bits.Mul64(amount, uint64(rate))
	// hi < rate <= 100, so the quotient fits in 64 bits.
	q, _ := bits.Div64(hi, lo, 100)
	return q
}
