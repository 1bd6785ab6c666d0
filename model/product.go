package models

import "github.com/shopspring/decimal"

// Product is a catalog row. The cart never reads it directly; callers copy
// title, image and price into a cart candidate at add time.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	ImageRef    string          `json:"image_ref,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Sizes       []string        `json:"sizes,omitempty"`
	Colors      []string        `json:"colors,omitempty"`
	Stock       int             `json:"stock"`
}

// Offers reports whether the product is sold in the given size and color.
// An empty size or color list means the product has no such dimension.
func (p Product) Offers(size, color string) bool {
	return offers(p.Sizes, size) && offers(p.Colors, color)
}

func offers(options []string, v string) bool {
	if len(options) == 0 {
		return v == ""
	}
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
