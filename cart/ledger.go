// Package cart holds the cart ledger: the ordered line items of one session
// and the money derived from them.
package cart

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	models "github.com/cmykmanya/shopai-sub000/model"
	"github.com/cmykmanya/shopai-sub000/pricing"
	"github.com/cmykmanya/shopai-sub000/promotion"
)

var (
	ErrProductRequired  = errors.New("cart: product_id required")
	ErrQuantityPositive = errors.New("cart: quantity must be > 0")
	ErrNegativePrice    = errors.New("cart: unit price must be >= 0")
	ErrVariantMismatch  = errors.New("cart: variant belongs to another product")
)

// Candidate is a request to put a quantity of one variant into the cart.
// UnitPrice is the catalog price at add time.
type Candidate struct {
	ProductID string
	Title     string
	ImageRef  string
	UnitPrice decimal.Decimal
	Quantity  int
	Variant   models.VariantKey
}

// Validate checks the preconditions Add relies on. Callers run it at their
// boundary; the ledger itself does not.
func (c Candidate) Validate() error {
	if c.ProductID == "" {
		return ErrProductRequired
	}
	if c.Quantity <= 0 {
		return ErrQuantityPositive
	}
	if c.UnitPrice.IsNegative() {
		return ErrNegativePrice
	}
	if c.Variant.ProductID != "" && c.Variant.ProductID != c.ProductID {
		return ErrVariantMismatch
	}
	return nil
}

// Evaluator yields the discount a promotion code grants on a subtotal.
// *promotion.Engine satisfies it.
type Evaluator interface {
	Evaluate(code string, subtotal decimal.Decimal) promotion.Result
}

// Ledger is the ordered collection of line items. At most one item exists per
// (ProductID, Variant); quantities are always >= 1; unit prices are frozen at
// first add.
type Ledger struct {
	mu    sync.RWMutex
	items []models.LineItem
	newID func() string
}

type Option func(*Ledger)

// WithIDGenerator overrides the uuid line item ids.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore rebuilds a ledger from a persisted snapshot. Rows with quantity < 1
// are dropped, duplicate variants fold into the first occurrence, and a row
// whose id is blank or already taken gets a fresh one, so a damaged snapshot
// cannot break the ledger invariants.
func Restore(items []models.LineItem, opts ...Option) *Ledger {
	l := NewLedger(opts...)
	// fresh ids must not collide with ids later rows still own
	reserved := make(map[string]bool, len(items))
	for _, it := range items {
		reserved[it.ID] = true
	}
	kept := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		it.Variant.ProductID = it.ProductID
		if idx := l.indexOfVariant(it.ProductID, it.Variant); idx >= 0 {
			l.items[idx].Quantity += it.Quantity
			continue
		}
		if it.ID == "" || kept[it.ID] {
			it.ID = l.newID()
			for reserved[it.ID] || kept[it.ID] {
				it.ID = l.newID()
			}
		}
		kept[it.ID] = true
		l.items = append(l.items, it)
	}
	return l
}

// Add merges c into an existing row with the same product and variant, or
// appends a new row. It returns the id of the row that now holds c.
func (l *Ledger) Add(c Candidate) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	variant := c.Variant
	variant.ProductID = c.ProductID
	if idx := l.indexOfVariant(c.ProductID, variant); idx >= 0 {
		l.items[idx].Quantity += c.Quantity
		return l.items[idx].ID
	}
	item := models.LineItem{
		ID:        l.newID(),
		ProductID: c.ProductID,
		Title:     c.Title,
		ImageRef:  c.ImageRef,
		UnitPrice: c.UnitPrice,
		Quantity:  c.Quantity,
		Variant:   variant,
	}
	l.items = append(l.items, item)
	return item.ID
}

// UpdateQuantity sets the quantity of id. A quantity <= 0 removes the row.
// Unknown ids are ignored; the result reports whether a row was touched.
func (l *Ledger) UpdateQuantity(id string, quantity int) bool {
	if quantity <= 0 {
		return l.Remove(id)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOfID(id)
	if idx < 0 {
		return false
	}
	l.items[idx].Quantity = quantity
	return true
}

// Remove deletes id if present and reports whether it was.
func (l *Ledger) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOfID(id)
	if idx < 0 {
		return false
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	return true
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// Item returns the row with id.
func (l *Ledger) Item(id string) (models.LineItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.indexOfID(id)
	if idx < 0 {
		return models.LineItem{}, false
	}
	return l.items[idx], true
}

// Items returns a copy of the rows in insertion order.
func (l *Ledger) Items() []models.LineItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.CloneItems(l.items)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// ItemCount is the sum of quantities.
func (l *Ledger) ItemCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, it := range l.items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the unrounded sum of unit price x quantity.
func (l *Ledger) Subtotal() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.subtotal()
}

// Totals derives the breakdown under policy, evaluating code afresh. An empty
// code or nil evaluator means no discount. An empty ledger owes no shipping
// or tax.
func (l *Ledger) Totals(policy pricing.Policy, promos Evaluator, code string) (pricing.Totals, promotion.Result) {
	l.mu.RLock()
	subtotal := l.subtotal()
	empty := len(l.items) == 0
	l.mu.RUnlock()

	var res promotion.Result
	discount := decimal.Zero
	if promos != nil && code != "" {
		res = promos.Evaluate(code, subtotal)
		if res.Applied {
			discount = res.Discount
		}
	}
	if empty {
		policy = nil
	}
	return pricing.Compute(subtotal, discount, policy), res
}

func (l *Ledger) subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range l.items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

func (l *Ledger) indexOfID(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) indexOfVariant(productID string, variant models.VariantKey) int {
	for i := range l.items {
		if l.items[i].ProductID == productID && l.items[i].Variant == variant {
			return i
		}
	}
	return -1
}
