package models

import "github.com/shopspring/decimal"

// VariantKey identifies a purchasable unit. Two keys are equal iff all three
// fields match exactly, so the struct is comparable with ==.
type VariantKey struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// LineItem is one cart row. ID is assigned by the ledger and is the only
// handle callers use for update and remove.
type LineItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	ImageRef  string          `json:"image_ref,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Variant   VariantKey      `json:"variant"`
}

// LineTotal is UnitPrice x Quantity, unrounded.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// CloneItems returns a copy of items; nil stays nil.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
