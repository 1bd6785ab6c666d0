package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cmykmanya/shopai-sub000/cart"
	models "github.com/cmykmanya/shopai-sub000/model"
	"github.com/cmykmanya/shopai-sub000/pricing"
	"github.com/cmykmanya/shopai-sub000/promotion"
)

type State int

const (
	NoPromotion State = iota
	PromotionApplied
)

func (s State) String() string {
	if s == PromotionApplied {
		return "promotion_applied"
	}
	return "no_promotion"
}

// Session is one shopper's cart. Commands run under the session lock, and
// the snapshot queued for saving is taken under the same lock, so saved state
// never runs behind memory in order.
type Session struct {
	key    string
	mgr    *Manager
	mu     sync.Mutex
	ledger *cart.Ledger
	code   string
}

func (s *Session) Key() string { return s.key }

// Add merges c into the cart and returns the id of the line it landed on.
// Callers validate c first.
func (s *Session) Add(c cart.Candidate) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.ledger.Add(c)
	s.changed("add")
	return id
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
// Unknown ids are ignored and report false.
func (s *Session) UpdateQuantity(id string, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ledger.UpdateQuantity(id, quantity) {
		s.ignored("update", id)
		return false
	}
	s.changed("update")
	return true
}

func (s *Session) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ledger.Remove(id) {
		s.ignored("remove", id)
		return false
	}
	s.changed("remove")
	return true
}

// Clear empties the cart and drops the applied promotion.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Clear()
	s.code = ""
	s.changed("clear")
}

// ApplyPromotion evaluates code against the current subtotal. An accepted
// code replaces any earlier one; a rejected code leaves it in place.
func (s *Session) ApplyPromotion(code string) promotion.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res promotion.Result
	if s.mgr.promos == nil {
		res = promotion.Result{Code: promotion.Normalize(code), Reason: promotion.ReasonInvalidCode}
	} else {
		res = s.mgr.promos.Evaluate(code, s.ledger.Subtotal())
	}
	s.mgr.metrics.Promotion(string(res.Reason))
	if res.Applied {
		s.code = res.Code
	}
	return res
}

func (s *Session) RemovePromotion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = ""
}

func (s *Session) PromotionCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *Session) State() State {
	if s.PromotionCode() == "" {
		return NoPromotion
	}
	return PromotionApplied
}

func (s *Session) Items() []models.LineItem { return s.ledger.Items() }

func (s *Session) Item(id string) (models.LineItem, bool) { return s.ledger.Item(id) }

func (s *Session) ItemCount() int { return s.ledger.ItemCount() }

// Totals prices the cart now. The applied code is re-evaluated, so a lapsed
// window gives zero discount without removing the code.
func (s *Session) Totals() (pricing.Totals, promotion.Result) {
	snap := s.Snapshot()
	return snap.Totals, snap.Promotion
}

// Snapshot is the cart and its pricing read at one instant.
type Snapshot struct {
	Items     []models.LineItem
	ItemCount int
	Code      string
	Totals    pricing.Totals
	Promotion promotion.Result
}

// Snapshot reads items and totals under the session lock so they always
// describe the same cart.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	items := s.ledger.Items()
	totals, res := s.ledger.Totals(s.mgr.policy, s.mgr.promos, s.code)
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	return Snapshot{Items: items, ItemCount: count, Code: s.code, Totals: totals, Promotion: res}
}

// Checkout hands the current snapshot to submit and empties the cart only if
// submit succeeds. The session stays locked meanwhile: commands that arrive
// during submit wait and apply to the emptied cart. submit must not call back
// into this session.
func (s *Session) Checkout(submit func(Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := submit(s.snapshot()); err != nil {
		return err
	}
	s.ledger.Clear()
	s.code = ""
	s.changed("checkout")
	return nil
}

func (s *Session) changed(op string) {
	s.mgr.metrics.Mutation(op)
	s.mgr.persist(s.key, s.ledger.Items())
}

func (s *Session) ignored(op, id string) {
	s.mgr.logger.Debug("cart command on unknown line ignored",
		zap.String("key", s.key),
		zap.String("op", op),
		zap.String("line_id", id))
}
