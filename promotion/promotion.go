// Package promotion validates promotion codes against a fixed rule table and
// yields the discount they grant on a subtotal.
package promotion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// Reason says why a code was not applied.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonInvalidCode  Reason = "invalid_code"
	ReasonExpired      Reason = "expired"
	ReasonNotYetActive Reason = "not_yet_active"
)

var (
	ErrInvalidCode  = errors.New("promotion: invalid code")
	ErrExpired      = errors.New("promotion: expired")
	ErrNotYetActive = errors.New("promotion: not yet active")

	ErrDuplicateCode = errors.New("promotion: duplicate code")
	ErrInvalidRule   = errors.New("promotion: invalid rule")
)

// Rule is one configured code. Rate is a fraction of the subtotal (0.10 is
// 10% off) for percentage rules; Amount is used by fixed rules. A nil window
// bound is open.
type Rule struct {
	Code       string
	Kind       Kind
	Rate       decimal.Decimal
	Amount     decimal.Decimal
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// Result is the outcome of one evaluation.
type Result struct {
	Applied  bool            `json:"applied"`
	Code     string          `json:"code,omitempty"`
	Rate     decimal.Decimal `json:"rate"`
	Discount decimal.Decimal `json:"discount"`
	Reason   Reason          `json:"reason,omitempty"`
}

// Err maps a rejected result to its sentinel error; applied or empty results
// return nil.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonInvalidCode:
		return ErrInvalidCode
	case ReasonExpired:
		return ErrExpired
	case ReasonNotYetActive:
		return ErrNotYetActive
	}
	return nil
}

// Normalize trims and case-folds a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r Rule) validate() error {
	if Normalize(r.Code) == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidRule)
	}
	switch r.Kind {
	case KindPercentage, "":
		if r.Rate.IsNegative() || r.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %s rate %s outside [0,1]", ErrInvalidRule, r.Code, r.Rate)
		}
	case KindFixed:
		if r.Amount.IsNegative() {
			return fmt.Errorf("%w: %s amount is negative", ErrInvalidRule, r.Code)
		}
	default:
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidRule, r.Code, r.Kind)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return fmt.Errorf("%w: %s window ends before it starts", ErrInvalidRule, r.Code)
	}
	return nil
}
