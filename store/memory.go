package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	models "github.com/cmykmanya/shopai-sub000/model"
)

// MemoryStore keeps carts, products and orders in process memory. It backs
// the "memory" driver and tests.
type MemoryStore struct {
	mu          sync.Mutex
	carts       map[string][]models.LineItem
	products    map[string]models.Product
	productIDs  []string
	orders      []models.Order
	nextOrderID int64
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(seed ...models.Product) *MemoryStore {
	m := &MemoryStore{
		carts:    map[string][]models.LineItem{},
		products: map[string]models.Product{},
		now:      time.Now,
	}
	for _, p := range seed {
		_, _ = m.CreateProduct(context.Background(), p)
	}
	return m
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) SaveCart(_ context.Context, key string, items []models.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(items) == 0 {
		delete(m.carts, key)
		return nil
	}
	m.carts[key] = models.CloneItems(items)
	return nil
}

func (m *MemoryStore) LoadCart(_ context.Context, key string) ([]models.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.CloneItems(m.carts[key]), nil
}

func (m *MemoryStore) CreateProduct(_ context.Context, p models.Product) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := m.products[p.ID]; exists {
		return "", fmt.Errorf("product %s already exists", p.ID)
	}
	m.products[p.ID] = p
	m.productIDs = append(m.productIDs, p.ID)
	return p.ID, nil
}

func (m *MemoryStore) ListProducts(_ context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Product, 0, len(m.productIDs))
	for _, id := range m.productIDs {
		out = append(out, m.products[id])
	}
	return out, nil
}

func (m *MemoryStore) GetProduct(_ context.Context, id string) (models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return models.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *MemoryStore) UpdateStock(_ context.Context, productID string, newStock int) error {
	if newStock < 0 {
		return errors.New("stock cannot be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	p.Stock = newStock
	m.products[productID] = p
	return nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, order models.Order) (models.Order, error) {
	if len(order.Items) == 0 {
		return order, ErrEmptyOrder
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	need := map[string]int{}
	for _, it := range order.Items {
		need[it.ProductID] += it.Quantity
	}
	for id, qty := range need {
		p, ok := m.products[id]
		if !ok {
			return order, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		if p.Stock < qty {
			return order, fmt.Errorf("product %s: %w", id, ErrInsufficientStock)
		}
	}
	for id, qty := range need {
		p := m.products[id]
		p.Stock -= qty
		m.products[id] = p
	}

	m.nextOrderID++
	order.ID = m.nextOrderID
	order.CreatedAt = m.now()
	order.Items = models.CloneItems(order.Items)
	m.orders = append(m.orders, order)
	return order, nil
}

// Orders returns the recorded orders in submission order.
func (m *MemoryStore) Orders() []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Order, len(m.orders))
	copy(out, m.orders)
	return out
}
