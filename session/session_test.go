package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cmykmanya/shopai-sub000/cart"
	"github.com/cmykmanya/shopai-sub000/metrics"
	models "github.com/cmykmanya/shopai-sub000/model"
	"github.com/cmykmanya/shopai-sub000/pricing"
	"github.com/cmykmanya/shopai-sub000/promotion"
	"github.com/cmykmanya/shopai-sub000/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGateway records saves and can fail or block them.
type fakeGateway struct {
	mu      sync.Mutex
	saved   map[string][]models.LineItem
	saves   int
	loads   int32
	loadErr error
	saveErr error
	seed    map[string][]models.LineItem

	// when set, each save signals started and waits on release;
	// started needs room for every save after the first
	started chan struct{}
	release chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{saved: map[string][]models.LineItem{}, seed: map[string][]models.LineItem{}}
}

func (f *fakeGateway) SaveCart(_ context.Context, key string, items []models.LineItem) error {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[key] = models.CloneItems(items)
	return nil
}

func (f *fakeGateway) LoadCart(_ context.Context, key string) ([]models.LineItem, error) {
	atomic.AddInt32(&f.loads, 1)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return models.CloneItems(f.seed[key]), nil
}

func (f *fakeGateway) snapshot(key string) ([]models.LineItem, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CloneItems(f.saved[key]), f.saves
}

func seqIDs() cart.Option {
	n := 0
	return cart.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("li-%d", n)
	})
}

func candidate(product, size, price string, qty int) cart.Candidate {
	return cart.Candidate{
		ProductID: product,
		Title:     product,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
		Variant:   models.VariantKey{Size: size, Color: "Red"},
	}
}

func newEngine(t *testing.T, now func() time.Time, rules ...promotion.Rule) *promotion.Engine {
	t.Helper()
	if len(rules) == 0 {
		rules = []promotion.Rule{{Code: "SAVE10", Rate: decimal.RequireFromString("0.10")}}
	}
	e, err := promotion.NewEngine(rules, promotion.WithClock(now))
	require.NoError(t, err)
	return e
}

func TestOpenRestoresOnceUnderConcurrency(t *testing.T) {
	gw := newFakeGateway()
	gw.seed["u1"] = []models.LineItem{{ID: "old", ProductID: "A", UnitPrice: decimal.NewFromInt(5), Quantity: 2}}
	m := NewManager(gw, pricing.DefaultPolicy(), nil)
	defer m.Close()

	var wg sync.WaitGroup
	sessions := make([]*Session, 16)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Open(context.Background(), "u1")
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.loads))
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, 2, sessions[0].ItemCount())
}

func TestOpenValidatesKeyAndClosedManager(t *testing.T) {
	m := NewManager(nil, pricing.DefaultPolicy(), nil)
	_, err := m.Open(context.Background(), "")
	assert.ErrorIs(t, err, ErrKeyRequired)

	m.Close()
	_, err = m.Open(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRestoreFailureStartsEmpty(t *testing.T) {
	gw := newFakeGateway()
	gw.loadErr = errors.New("db down")
	mt := metrics.New(nil)
	m := NewManager(gw, pricing.DefaultPolicy(), nil, WithMetrics(mt))
	defer m.Close()

	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, s.Items())
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.RestoreFailures))
}

func TestMutationsArePersistedAfterFlush(t *testing.T) {
	gw := newFakeGateway()
	m := NewManager(gw, pricing.DefaultPolicy(), nil, WithLedgerOptions(seqIDs()))
	defer m.Close()
	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)

	id := s.Add(candidate("A", "M", "29.99", 2))
	s.Add(candidate("B", "L", "89.99", 1))
	assert.True(t, s.UpdateQuantity(id, 3))
	m.Flush()

	saved, _ := gw.snapshot("u1")
	assert.Equal(t, s.Items(), saved)

	s.Clear()
	m.Flush()
	saved, _ = gw.snapshot("u1")
	assert.Empty(t, saved)
}

func TestUnknownIDsAreNoops(t *testing.T) {
	gw := newFakeGateway()
	m := NewManager(gw, pricing.DefaultPolicy(), nil)
	defer m.Close()
	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)

	s.Add(candidate("A", "M", "10", 1))
	m.Flush()
	_, before := gw.snapshot("u1")

	assert.False(t, s.UpdateQuantity("nope", 4))
	assert.False(t, s.Remove("nope"))
	m.Flush()
	_, after := gw.snapshot("u1")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, s.ItemCount())
}

func TestSaveFailureKeepsMemory(t *testing.T) {
	gw := newFakeGateway()
	gw.saveErr = errors.New("disk full")
	mt := metrics.New(nil)
	m := NewManager(gw, pricing.DefaultPolicy(), nil, WithMetrics(mt))
	defer m.Close()
	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)

	s.Add(candidate("A", "M", "10", 1))
	m.Flush()

	assert.Equal(t, 1, s.ItemCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.PersistSaves.WithLabelValues(metrics.SaveFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mt.CartMutations.WithLabelValues("add")))
}

func TestSlowSaveNeverBlocksAndCoalesces(t *testing.T) {
	gw := newFakeGateway()
	gw.started = make(chan struct{}, 1)
	gw.release = make(chan struct{})
	m := NewManager(gw, pricing.DefaultPolicy(), nil)
	defer m.Close()
	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)

	s.Add(candidate("A", "M", "1", 1))
	<-gw.started // first save is now stuck in the gateway

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Add(candidate("A", "M", "1", 1))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutations blocked behind a slow save")
	}

	close(gw.release)
	m.Flush()

	saved, saves := gw.snapshot("u1")
	assert.Equal(t, 2, saves)
	require.Len(t, saved, 1)
	assert.Equal(t, 11, saved[0].Quantity)
}

func TestCloseDrainsPendingSaves(t *testing.T) {
	gw := store.NewMemoryStore()
	m := NewManager(gw, pricing.DefaultPolicy(), nil)
	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)
	s.Add(candidate("A", "M", "29.99", 2))
	s.Add(candidate("B", "L", "89.99", 1))
	m.Close()

	reopened := NewManager(gw, pricing.DefaultPolicy(), nil)
	defer reopened.Close()
	s2, err := reopened.Open(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, s.Items(), s2.Items())
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewManager(nil, pricing.DefaultPolicy(), newEngine(t, time.Now))
	defer m.Close()
	a, _ := m.Open(context.Background(), "a")
	b, _ := m.Open(context.Background(), "b")

	a.Add(candidate("A", "M", "10", 1))
	a.ApplyPromotion("SAVE10")
	assert.Equal(t, 0, b.ItemCount())
	assert.Equal(t, NoPromotion, b.State())
	assert.Equal(t, PromotionApplied, a.State())
}

func TestPromotionStateMachine(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	until := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
	engine := newEngine(t, clock,
		promotion.Rule{Code: "SAVE10", Rate: decimal.RequireFromString("0.10"), ValidUntil: &until},
		promotion.Rule{Code: "SAVE20", Rate: decimal.RequireFromString("0.20")},
	)
	m := NewManager(nil, pricing.DefaultPolicy(), engine)
	defer m.Close()
	s, _ := m.Open(context.Background(), "u1")
	s.Add(candidate("A", "M", "100", 1))

	res := s.ApplyPromotion("  save10 ")
	require.True(t, res.Applied)
	assert.Equal(t, "SAVE10", s.PromotionCode())

	res = s.ApplyPromotion("BOGUS")
	assert.ErrorIs(t, res.Err(), promotion.ErrInvalidCode)
	assert.Equal(t, "SAVE10", s.PromotionCode(), "rejected code keeps the previous one")

	res = s.ApplyPromotion("SAVE20")
	require.True(t, res.Applied)
	totals, _ := s.Totals()
	assert.Equal(t, "20.00", totals.Discount.StringFixed(2), "codes replace, never stack")

	s.RemovePromotion()
	assert.Equal(t, NoPromotion, s.State())

	s.ApplyPromotion("SAVE10")
	now = until.Add(time.Second)
	totals, applied := s.Totals()
	assert.True(t, totals.Discount.IsZero())
	assert.Equal(t, promotion.ReasonExpired, applied.Reason)
	assert.Equal(t, PromotionApplied, s.State(), "lapsed code stays until removed")

	s.Clear()
	assert.Equal(t, NoPromotion, s.State())
	assert.Equal(t, 0, s.ItemCount())
}

func TestTotalsWorkedExample(t *testing.T) {
	policy, err := pricing.NewFlatPolicy(decimal.NewFromInt(150), decimal.RequireFromString("9.99"), decimal.RequireFromString("0.08"))
	require.NoError(t, err)
	m := NewManager(nil, policy, newEngine(t, time.Now))
	defer m.Close()
	s, _ := m.Open(context.Background(), "u1")

	s.Add(candidate("A", "M", "29.99", 1))
	s.Add(candidate("A", "M", "29.99", 1))
	s.Add(candidate("B", "L", "89.99", 1))
	s.Add(candidate("A", "L", "29.99", 1))
	require.Len(t, s.Items(), 3)
	assert.Equal(t, 2, s.Items()[0].Quantity)

	s.Remove(s.Items()[2].ID)
	s.ApplyPromotion("SAVE10")
	totals, res := s.Totals()
	require.True(t, res.Applied)
	r := totals.Rounded()
	assert.Equal(t, "149.97", r.Subtotal.StringFixed(2))
	assert.Equal(t, "15.00", r.Discount.StringFixed(2))
	assert.Equal(t, "9.99", r.Shipping.StringFixed(2))
	assert.Equal(t, "10.80", r.Tax.StringFixed(2))
	assert.Equal(t, "155.76", r.Total.StringFixed(2))
}

func TestCheckoutClearsOnlyOnSuccess(t *testing.T) {
	gw := newFakeGateway()
	m := NewManager(gw, pricing.DefaultPolicy(), newEngine(t, time.Now))
	defer m.Close()
	s, err := m.Open(context.Background(), "u1")
	require.NoError(t, err)
	s.Add(candidate("A", "M", "10", 2))
	s.ApplyPromotion("SAVE10")

	err = s.Checkout(func(snap Snapshot) error { return errors.New("order rejected") })
	require.Error(t, err)
	assert.Equal(t, 2, s.ItemCount())
	assert.Equal(t, PromotionApplied, s.State())

	var got Snapshot
	require.NoError(t, s.Checkout(func(snap Snapshot) error {
		got = snap
		return nil
	}))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.ItemCount)
	assert.Equal(t, "SAVE10", got.Code)
	assert.Equal(t, "2.00", got.Totals.Discount.StringFixed(2))
	assert.Equal(t, 0, s.ItemCount())
	assert.Equal(t, NoPromotion, s.State())

	m.Flush()
	saved, _ := gw.snapshot("u1")
	assert.Empty(t, saved)
}

func TestCommandsWaitForCheckout(t *testing.T) {
	m := NewManager(nil, pricing.DefaultPolicy(), nil)
	defer m.Close()
	s, _ := m.Open(context.Background(), "u1")
	s.Add(candidate("A", "M", "10", 1))

	added := make(chan struct{})
	require.NoError(t, s.Checkout(func(snap Snapshot) error {
		go func() {
			s.Add(candidate("B", "L", "5", 1))
			close(added)
		}()
		select {
		case <-added:
			t.Error("add ran while checkout held the session")
		case <-time.After(20 * time.Millisecond):
		}
		require.Len(t, snap.Items, 1)
		return nil
	}))
	<-added

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].ProductID)
}

func TestSnapshotMatchesItemsAndTotals(t *testing.T) {
	m := NewManager(nil, pricing.DefaultPolicy(), nil)
	defer m.Close()
	s, _ := m.Open(context.Background(), "u1")
	s.Add(candidate("A", "M", "29.99", 2))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Add(candidate("A", "M", "29.99", 1))
		}
	}()
	for i := 0; i < 200; i++ {
		snap := s.Snapshot()
		sum := decimal.Zero
		for _, it := range snap.Items {
			sum = sum.Add(it.LineTotal())
		}
		if !sum.Equal(snap.Totals.Subtotal) {
			t.Fatalf("snapshot subtotal %s does not match its items %s", snap.Totals.Subtotal, sum)
		}
	}
	wg.Wait()
}
