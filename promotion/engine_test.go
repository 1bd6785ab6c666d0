package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	from  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until = time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
)

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func newTestEngine(t *testing.T, now time.Time) *Engine {
	t.Helper()
	e, err := NewEngine([]Rule{
		{Code: "SAVE10", Kind: KindPercentage, Rate: decimal.RequireFromString("0.10"), ValidFrom: &from, ValidUntil: &until},
		{Code: "welcome5", Kind: KindFixed, Amount: decimal.RequireFromString("5")},
	}, fixedClock(now))
	require.NoError(t, err)
	return e
}

func TestEvaluateWindow(t *testing.T) {
	subtotal := decimal.RequireFromString("149.97")

	before := newTestEngine(t, from.Add(-time.Second)).Evaluate("SAVE10", subtotal)
	assert.False(t, before.Applied)
	assert.Equal(t, ReasonNotYetActive, before.Reason)
	assert.ErrorIs(t, before.Err(), ErrNotYetActive)

	after := newTestEngine(t, until.Add(time.Second)).Evaluate("SAVE10", subtotal)
	assert.False(t, after.Applied)
	assert.Equal(t, ReasonExpired, after.Reason)
	assert.ErrorIs(t, after.Err(), ErrExpired)

	within := newTestEngine(t, from.Add(24*time.Hour)).Evaluate("SAVE10", subtotal)
	require.True(t, within.Applied)
	assert.NoError(t, within.Err())
	assert.True(t, within.Discount.Equal(decimal.RequireFromString("14.997")))
	assert.True(t, within.Rate.Equal(decimal.RequireFromString("0.1")))
}

func TestEvaluateWindowBoundsAreInclusive(t *testing.T) {
	subtotal := decimal.NewFromInt(10)
	assert.True(t, newTestEngine(t, from).Evaluate("SAVE10", subtotal).Applied)
	assert.True(t, newTestEngine(t, until).Evaluate("SAVE10", subtotal).Applied)
}

func TestEvaluateNormalizesInput(t *testing.T) {
	e := newTestEngine(t, from)
	res := e.Evaluate("  save10 ", decimal.NewFromInt(100))
	require.True(t, res.Applied)
	assert.Equal(t, "SAVE10", res.Code)

	assert.True(t, e.Evaluate("Welcome5", decimal.NewFromInt(100)).Applied)
}

func TestEvaluateUnknownCodeBeforeWindowChecks(t *testing.T) {
	e := newTestEngine(t, until.Add(time.Hour))
	res := e.Evaluate("NOPE", decimal.NewFromInt(100))
	assert.Equal(t, ReasonInvalidCode, res.Reason)
	assert.ErrorIs(t, res.Err(), ErrInvalidCode)
}

func TestFixedDiscountCappedAtSubtotal(t *testing.T) {
	e := newTestEngine(t, from)
	res := e.Evaluate("WELCOME5", decimal.RequireFromString("3.50"))
	require.True(t, res.Applied)
	assert.True(t, res.Discount.Equal(decimal.RequireFromString("3.50")))
}

func TestNewEngineRejectsBadRules(t *testing.T) {
	_, err := NewEngine([]Rule{{Code: "a", Rate: decimal.RequireFromString("0.1")}, {Code: " A ", Rate: decimal.RequireFromString("0.2")}})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	_, err = NewEngine([]Rule{{Code: "X", Rate: decimal.RequireFromString("1.5")}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewEngine([]Rule{{Code: "X", Kind: KindFixed, Amount: decimal.NewFromInt(-1)}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewEngine([]Rule{{Code: "X", Rate: decimal.RequireFromString("0.1"), ValidFrom: &until, ValidUntil: &from}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewEngine([]Rule{{Code: "  "}})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCodesSorted(t *testing.T) {
	assert.Equal(t, []string{"SAVE10", "WELCOME5"}, newTestEngine(t, from).Codes())
}
