package store

import (
	"context"
	"errors"

	models "github.com/cmykmanya/shopai-sub000/model"
)

var (
	// ErrNotFound is returned when a product does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock returned when requested qty exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEmptyOrder is returned when an order without items is submitted.
	ErrEmptyOrder = errors.New("order has no items")
)

// CartGateway persists the full ordered line item snapshot of one cart,
// keyed by session or user id. LoadCart returns nil, nil for unknown keys.
type CartGateway interface {
	SaveCart(ctx context.Context, key string, items []models.LineItem) error
	LoadCart(ctx context.Context, key string) ([]models.LineItem, error)
}

// Catalog is the product lookup consulted by callers at add time.
type Catalog interface {
	CreateProduct(ctx context.Context, p models.Product) (string, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)
	UpdateStock(ctx context.Context, productID string, newStock int) error
}

// OrderStore records submitted orders and takes their quantities out of stock.
type OrderStore interface {
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)
}

// Store is a backend serving all three contracts.
type Store interface {
	CartGateway
	Catalog
	OrderStore

	Close() error
}
