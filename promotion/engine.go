package promotion

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Engine evaluates codes against an immutable rule table. It holds no
// per-cart state and is safe for concurrent use.
type Engine struct {
	rules map[string]Rule
	now   func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(rules []Rule, opts ...Option) (*Engine, error) {
	e := &Engine{rules: make(map[string]Rule, len(rules)), now: time.Now}
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		code := Normalize(r.Code)
		if _, dup := e.rules[code]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, code)
		}
		r.Code = code
		if r.Kind == "" {
			r.Kind = KindPercentage
		}
		e.rules[code] = r
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate checks code against the table at the current clock reading.
// Unknown codes are rejected first, then codes before their window, then
// codes past it.
func (e *Engine) Evaluate(code string, subtotal decimal.Decimal) Result {
	norm := Normalize(code)
	rule, ok := e.rules[norm]
	if !ok {
		return Result{Code: norm, Reason: ReasonInvalidCode}
	}
	now := e.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return Result{Code: norm, Reason: ReasonNotYetActive}
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return Result{Code: norm, Reason: ReasonExpired}
	}
	return Result{
		Applied:  true,
		Code:     norm,
		Rate:     rule.Rate,
		Discount: rule.discount(subtotal),
	}
}

func (r Rule) discount(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsNegative() {
		return decimal.Zero
	}
	if r.Kind == KindFixed {
		return decimal.Min(r.Amount, subtotal)
	}
	return subtotal.Mul(r.Rate)
}

// Codes lists the configured codes in sorted order.
func (e *Engine) Codes() []string {
	out := make([]string, 0, len(e.rules))
	for code := range e.rules {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
