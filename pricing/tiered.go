package pricing

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// Band charges Fee for discounted subtotals at or above From.
type Band struct {
	From decimal.Decimal
	Fee  decimal.Decimal
}

// TieredPolicy picks the shipping fee of the highest band whose From is not
// above the amount. Amounts below every band pay the first band's fee.
type TieredPolicy struct {
	bands   []Band
	taxRate decimal.Decimal
}

var ErrNoBands = errors.New("pricing: tiered policy needs at least one band")

func NewTieredPolicy(bands []Band, taxRate decimal.Decimal) (TieredPolicy, error) {
	if len(bands) == 0 {
		return TieredPolicy{}, ErrNoBands
	}
	if taxRate.IsNegative() {
		return TieredPolicy{}, ErrNegativeParameter
	}
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	for _, b := range sorted {
		if b.From.IsNegative() || b.Fee.IsNegative() {
			return TieredPolicy{}, ErrNegativeParameter
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From.LessThan(sorted[j].From) })
	return TieredPolicy{bands: sorted, taxRate: taxRate}, nil
}

func (p TieredPolicy) ShippingCost(amount decimal.Decimal) decimal.Decimal {
	fee := p.bands[0].Fee
	for _, b := range p.bands {
		if amount.LessThan(b.From) {
			break
		}
		fee = b.Fee
	}
	return fee
}

func (p TieredPolicy) TaxAmount(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Mul(p.taxRate)
}
