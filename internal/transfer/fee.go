package transfer

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier prices transfers up to and including UpTo. A zero UpTo marks the
// open-ended last tier.
type Tier struct {
	UpTo        decimal.Decimal
	Flat        decimal.Decimal
	BasisPoints int64
}

// FeeTable computes transfer fees from ordered tiers with an optional cap.
type FeeTable struct {
	Tiers []Tier
	Cap   decimal.Decimal
}

// FlatFee returns a single-tier table.
func FlatFee(flat decimal.Decimal, basisPoints int64, feeCap decimal.Decimal) FeeTable {
	return FeeTable{
		Tiers: []Tier{{Flat: flat, BasisPoints: basisPoints}},
		Cap:   feeCap,
	}
}

// Validate checks that tiers are ascending and only the last is open-ended.
func (t FeeTable) Validate() error {
	prev := decimal.Zero
	for i, tier := range t.Tiers {
		if tier.Flat.IsNegative() || tier.BasisPoints < 0 {
			return fmt.Errorf("tier %d: negative fee", i)
		}
		if tier.UpTo.IsZero() {
			if i != len(t.Tiers)-1 {
				return fmt.Errorf("tier %d: only the last tier may be open-ended", i)
			}
			continue
		}
		if !tier.UpTo.GreaterThan(prev) {
			return fmt.Errorf("tier %d: bounds must be ascending", i)
		}
		prev = tier.UpTo
	}
	if t.Cap.IsNegative() {
		return fmt.Errorf("negative fee cap")
	}
	return nil
}

// Fee prices amount, rounded half-up to places. Amounts beyond the last
// bounded tier pay nothing unless an open-ended tier exists.
func (t FeeTable) Fee(amount decimal.Decimal, places int32) decimal.Decimal {
	for _, tier := range t.Tiers {
		if !tier.UpTo.IsZero() && amount.GreaterThan(tier.UpTo) {
			continue
		}
		fee := tier.Flat.Add(amount.Mul(decimal.NewFromInt(tier.BasisPoints)).Div(decimal.NewFromInt(10_000)))
		if t.Cap.IsPositive() && fee.GreaterThan(t.Cap) {
			fee = t.Cap
		}
		return fee.Round(places)
	}
	return decimal.Zero
}
