package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/cmykmanya/shopai-sub000/model"
)

func TestMemoryStoreCartRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	empty, err := m.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, empty)

	items := []models.LineItem{
		lineItem("li-3", "C", "S", "Green", "5", 1),
		lineItem("li-1", "A", "M", "Red", "29.99", 2),
		lineItem("li-2", "B", "L", "Blue", "89.99", 1),
	}
	require.NoError(t, m.SaveCart(ctx, "s1", items))

	items[0].Quantity = 99
	got, err := m.LoadCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"li-3", "li-1", "li-2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 1, got[0].Quantity, "saved snapshot must not alias caller slice")

	require.NoError(t, m.SaveCart(ctx, "s1", nil))
	got, err = m.LoadCart(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreCatalog(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(models.Product{ID: "tee", Title: "Tee", Price: decimal.RequireFromString("19.99"), Stock: 2})

	id, err := m.CreateProduct(ctx, models.Product{Title: "Cap", Price: decimal.NewFromInt(12)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = m.CreateProduct(ctx, models.Product{ID: "tee"})
	assert.Error(t, err)

	list, err := m.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tee", list[0].ID)

	require.NoError(t, m.UpdateStock(ctx, "tee", 10))
	p, err := m.GetProduct(ctx, "tee")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)

	assert.ErrorIs(t, m.UpdateStock(ctx, "nope", 1), ErrNotFound)
	assert.Error(t, m.UpdateStock(ctx, "tee", -1))
	_, err = m.GetProduct(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreCreateOrderTakesStock(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(
		models.Product{ID: "A", Stock: 3},
		models.Product{ID: "B", Stock: 1},
	)

	_, err := m.CreateOrder(ctx, models.Order{UserID: "u"})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	order := models.Order{UserID: "u", Items: []models.LineItem{
		lineItem("1", "A", "M", "", "1", 2),
		lineItem("2", "A", "L", "", "1", 1),
		lineItem("3", "B", "", "", "1", 1),
	}}
	got, err := m.CreateOrder(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.False(t, got.CreatedAt.IsZero())

	a, _ := m.GetProduct(ctx, "A")
	assert.Equal(t, 0, a.Stock)

	_, err = m.CreateOrder(ctx, order)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Len(t, m.Orders(), 1)
}
