package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	models "github.com/cmykmanya/shopai-sub000/model"
)

//go:embed migrations.sql
var migrationSQL string

// PostgresStore is a Store backed by Postgres and has in-process locks
type PostgresStore struct {
	DB *sql.DB

	// per-key mutexes so two goroutines in this process never interleave
	// snapshot writes for the same cart. Keys are user_id -> *sync.Mutex
	locks sync.Map
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

// Migrate applies the embedded schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// helper: acquire per-user lock (process-local). Returns unlock func.
func (s *PostgresStore) lockForUser(userID string) func() {
	actual, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mtx := actual.(*sync.Mutex)
	mtx.Lock()
	return mtx.Unlock
}

// SaveCart replaces the stored snapshot for key. An empty snapshot deletes
// the cart row and, by cascade, its items.
func (s *PostgresStore) SaveCart(ctx context.Context, key string, items []models.LineItem) error {
	unlock := s.lockForUser(key)
	defer unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if len(items) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, key); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO UPDATE SET updated_at = now()`, key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, key); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO cart_items (cart_id, position, item_id, product_id, title, image_ref, unit_price, quantity, size, color) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, it := range items {
			if _, err := stmt.ExecContext(ctx, key, i, it.ID, it.ProductID, it.Title, it.ImageRef, it.UnitPrice, it.Quantity, it.Variant.Size, it.Variant.Color); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// LoadCart returns the snapshot in its saved order.
func (s *PostgresStore) LoadCart(ctx context.Context, key string) ([]models.LineItem, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT item_id, product_id, title, image_ref, unit_price, quantity, size, color FROM cart_items WHERE cart_id = $1 ORDER BY position`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.LineItem
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Title, &it.ImageRef, &it.UnitPrice, &it.Quantity, &it.Variant.Size, &it.Variant.Color); err != nil {
			return nil, err
		}
		it.Variant.ProductID = it.ProductID
		out = append(out, it)
	}
	return out, rows.Err()
}

// CreateProduct inserts a product and returns its id. A blank id gets a uuid.
func (s *PostgresStore) CreateProduct(ctx context.Context, p models.Product) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO products (id, title, description, image_ref, price, sizes, colors, stock) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.ID, p.Title, p.Description, p.ImageRef, p.Price, pq.Array(p.Sizes), pq.Array(p.Colors), p.Stock,
	).Scan(&id)
	return id, err
}

const productColumns = `id, title, description, image_ref, price, sizes, colors, stock`

func scanProduct(sc interface{ Scan(...any) error }) (models.Product, error) {
	var p models.Product
	var desc sql.NullString
	if err := sc.Scan(&p.ID, &p.Title, &desc, &p.ImageRef, &p.Price, pq.Array(&p.Sizes), pq.Array(&p.Colors), &p.Stock); err != nil {
		return models.Product{}, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (models.Product, error) {
	p, err := scanProduct(s.DB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, err
}

// CreateOrder writes the order and its items and takes the ordered quantities
// out of stock, all in one transaction. Product rows are locked in id order
// to avoid deadlocks between concurrent checkouts.
func (s *PostgresStore) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	if len(order.Items) == 0 {
		return order, ErrEmptyOrder
	}
	unlock := s.lockForUser(order.UserID)
	defer unlock()

	need := map[string]int{}
	for _, it := range order.Items {
		need[it.ProductID] += it.Quantity
	}
	productIDs := make([]string, 0, len(need))
	for id := range need {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return order, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, id := range productIDs {
		var stock int
		err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return order, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return order, err
		}
		if stock < need[id] {
			return order, fmt.Errorf("product %s: %w", id, ErrInsufficientStock)
		}
	}

	var orderID int64
	var createdAt time.Time
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, promotion_code, subtotal, discount, shipping, tax, total) VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		order.UserID, order.PromotionCode, order.Subtotal, order.Discount, order.Shipping, order.Tax, order.Total,
	).Scan(&orderID, &createdAt); err != nil {
		return order, err
	}

	itemStmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (order_id, position, item_id, product_id, title, size, color, quantity, price) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`)
	if err != nil {
		return order, err
	}
	defer itemStmt.Close()
	for i, it := range order.Items {
		if _, err := itemStmt.ExecContext(ctx, orderID, i, it.ID, it.ProductID, it.Title, it.Variant.Size, it.Variant.Color, it.Quantity, it.UnitPrice); err != nil {
			return order, err
		}
	}

	stockStmt, err := tx.PrepareContext(ctx, `UPDATE products SET stock = stock - $1 WHERE id = $2`)
	if err != nil {
		return order, err
	}
	defer stockStmt.Close()
	for _, id := range productIDs {
		if _, err := stockStmt.ExecContext(ctx, need[id], id); err != nil {
			return order, err
		}
	}

	if err := tx.Commit(); err != nil {
		return order, err
	}
	committed = true

	order.ID = orderID
	order.CreatedAt = createdAt
	return order, nil
}
