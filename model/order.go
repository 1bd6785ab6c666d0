package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the record handed to checkout submission. Items are the ledger rows
// verbatim; the money fields are the display-rounded totals breakdown.
type Order struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	PromotionCode string          `json:"promotion_code,omitempty"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Shipping      decimal.Decimal `json:"shipping"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
}
