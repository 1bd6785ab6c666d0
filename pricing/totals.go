package pricing

import "github.com/shopspring/decimal"

// DisplayPlaces is the number of decimal places money is rounded to when shown.
const DisplayPlaces = 2

// Totals is the derived money breakdown of a cart. Values are unrounded; call
// Rounded at the display boundary.
type Totals struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	Discount              decimal.Decimal `json:"discount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	Shipping              decimal.Decimal `json:"shipping"`
	Tax                   decimal.Decimal `json:"tax"`
	Total                 decimal.Decimal `json:"total"`
}

// Compute assembles the breakdown. The discount is clamped to [0, subtotal].
func Compute(subtotal, discount decimal.Decimal, p Policy) Totals {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	after := subtotal.Sub(discount)
	t := Totals{
		Subtotal:              subtotal,
		Discount:              discount,
		SubtotalAfterDiscount: after,
		Shipping:              decimal.Zero,
		Tax:                   decimal.Zero,
	}
	if p != nil {
		t.Shipping = p.ShippingCost(after)
		t.Tax = p.TaxAmount(after)
	}
	t.Total = after.Add(t.Shipping).Add(t.Tax)
	return t
}

// Rounded returns every field rounded half away from zero to DisplayPlaces.
// Total is rounded from the unrounded sum, not re-added from rounded parts.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:              t.Subtotal.Round(DisplayPlaces),
		Discount:              t.Discount.Round(DisplayPlaces),
		SubtotalAfterDiscount: t.SubtotalAfterDiscount.Round(DisplayPlaces),
		Shipping:              t.Shipping.Round(DisplayPlaces),
		Tax:                   t.Tax.Round(DisplayPlaces),
		Total:                 t.Total.Round(DisplayPlaces),
	}
}
