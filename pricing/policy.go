// Package pricing derives shipping and tax from a discounted subtotal and
// assembles the totals breakdown of a cart.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Policy computes shipping and tax from the subtotal after discount. It must be
// a pure function of its input and static configuration.
type Policy interface {
	ShippingCost(subtotalAfterDiscount decimal.Decimal) decimal.Decimal
	TaxAmount(subtotalAfterDiscount decimal.Decimal) decimal.Decimal
}

var (
	DefaultFreeShippingThreshold = decimal.RequireFromString("50.00")
	DefaultFlatShippingFee       = decimal.RequireFromString("9.99")
	DefaultTaxRate               = decimal.RequireFromString("0.08")
)

var ErrNegativeParameter = errors.New("pricing: parameters must be >= 0")

// FlatPolicy charges a flat shipping fee below a free-shipping threshold and a
// flat tax rate on the discounted subtotal.
type FlatPolicy struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultPolicy returns the 50.00 / 9.99 / 8% policy.
func DefaultPolicy() FlatPolicy {
	return FlatPolicy{
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		FlatShippingFee:       DefaultFlatShippingFee,
		TaxRate:               DefaultTaxRate,
	}
}

func NewFlatPolicy(threshold, fee, taxRate decimal.Decimal) (FlatPolicy, error) {
	if threshold.IsNegative() || fee.IsNegative() || taxRate.IsNegative() {
		return FlatPolicy{}, ErrNegativeParameter
	}
	return FlatPolicy{FreeShippingThreshold: threshold, FlatShippingFee: fee, TaxRate: taxRate}, nil
}

// ShippingCost is zero at or above the threshold.
func (p FlatPolicy) ShippingCost(amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.FlatShippingFee
}

func (p FlatPolicy) TaxAmount(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Mul(p.TaxRate)
}
