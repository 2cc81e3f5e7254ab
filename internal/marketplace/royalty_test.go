package marketplace

import (
	"errors"
	"math"
	"math/big"
	"testing"
)

func TestSplitResale(t *testing.T) {
	tests := []struct {
		name       string
		price      uint64
		baseRate   uint8
		vendorRate uint8
		want       RoyaltySplit
		wantErr    error
	}{
		{
			name: "base and vendor royalty", price: 2000, baseRate: 2, vendorRate: 5,
			want: RoyaltySplit{Price: 2000, BaseRoyalty: 40, VendorRoyalty: 100, NetToSeller: 1860},
		},
		{
			name: "flooring goes to the seller", price: 99, baseRate: 3, vendorRate: 7,
			want: RoyaltySplit{Price: 99, BaseRoyalty: 2, VendorRoyalty: 6, NetToSeller: 91},
		},
		{
			name: "no royalties", price: 500,
			want: RoyaltySplit{Price: 500, NetToSeller: 500},
		},
		{
			name: "zero price", price: 0, baseRate: 10, vendorRate: 10,
			want: RoyaltySplit{},
		},
		{
			name: "rates summing to 100", price: 1000, baseRate: 40, vendorRate: 60,
			want: RoyaltySplit{Price: 1000, BaseRoyalty: 400, VendorRoyalty: 600, NetToSeller: 0},
		},
		{
			name: "max price does not overflow", price: math.MaxInt64, baseRate: 100,
			want: RoyaltySplit{Price: math.MaxInt64, BaseRoyalty: math.MaxInt64},
		},
		{
			name: "rates summing above 100", price: 1000, baseRate: 60, vendorRate: 41,
			wantErr: ErrRoyaltyExceedsPrice,
		},
		{
			name: "base rate out of range", price: 1000, baseRate: 101,
			wantErr: ErrInvalidRoyaltyRate,
		},
		{
			name: "vendor rate out of range", price: 1000, vendorRate: 255,
			wantErr: ErrInvalidRoyaltyRate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitResale(tt.price, tt.baseRate, tt.vendorRate)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			if got.BaseRoyalty+got.VendorRoyalty+got.NetToSeller != got.Price {
				t.Errorf("split does not add up to price: %+v", got)
			}
		})
	}
}

func FuzzSplitResale(f *testing.F) {
	f.Add(uint64(2000), uint8(2), uint8(5))
	f.Add(uint64(99), uint8(3), uint8(7))
	f.Add(uint64(0), uint8(100), uint8(0))
	f.Add(uint64(math.MaxUint64), uint8(50), uint8(50))
	f.Add(uint64(math.MaxUint64), uint8(99), uint8(1))
	f.Add(uint64(1000), uint8(60), uint8(41))
	f.Add(uint64(7), uint8(101), uint8(0))

	f.Fuzz(func(t *testing.T, price uint64, baseRate, vendorRate uint8) {
		got, err := SplitResale(price, baseRate, vendorRate)
		switch {
		case baseRate > MaxRoyaltyRate || vendorRate > MaxRoyaltyRate:
			if !errors.Is(err, ErrInvalidRoyaltyRate) {
				t.Fatalf("rates %d/%d: expected ErrInvalidRoyaltyRate, got %v", baseRate, vendorRate, err)
			}
			return
		case int(baseRate)+int(vendorRate) > MaxRoyaltyRate:
			if !errors.Is(err, ErrRoyaltyExceedsPrice) {
				t.Fatalf("rates %d/%d: expected ErrRoyaltyExceedsPrice, got %v", baseRate, vendorRate, err)
			}
			return
		}
		if err != nil {
			t.Fatalf("split %d at %d/%d: %v", price, baseRate, vendorRate, err)
		}

		if got.Price != price {
			t.Fatalf("price changed: %+v", got)
		}
		if got.BaseRoyalty > price || got.VendorRoyalty > price-got.BaseRoyalty {
			t.Fatalf("royalties exceed price: %+v", got)
		}
		if got.BaseRoyalty+got.VendorRoyalty+got.NetToSeller != price {
			t.Fatalf("split does not add up to price: %+v", got)
		}

		p := new(big.Int).SetUint64(price)
		hundred := big.NewInt(100)
		floorOf := func(rate uint8) *big.Int {
			n := new(big.Int).Mul(p, big.NewInt(int64(rate)))
			return n.Quo(n, hundred)
		}
		if want := floorOf(baseRate); want.Cmp(new(big.Int).SetUint64(got.BaseRoyalty)) != 0 {
			t.Fatalf("base royalty %d, want %s", got.BaseRoyalty, want)
		}
		if want := floorOf(vendorRate); want.Cmp(new(big.Int).SetUint64(got.VendorRoyalty)) != 0 {
			t.Fatalf("vendor royalty %d, want %s", got.VendorRoyalty, want)
		}

		// exact total minus floored total, in hundredths of a unit
		exact := new(big.Int).Mul(p, big.NewInt(int64(baseRate)+int64(vendorRate)))
		floored := new(big.Int).SetUint64(got.BaseRoyalty)
		floored.Add(floored, new(big.Int).SetUint64(got.VendorRoyalty))
		floored.Mul(floored, hundred)
		diff := exact.Sub(exact, floored)
		if diff.Sign() < 0 || diff.Cmp(big.NewInt(200)) > 0 {
			t.Fatalf("truncation of %s/100 units at price %d, rates %d/%d", diff, price, baseRate, vendorRate)
		}
	})
}
