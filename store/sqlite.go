package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	models "github.com/cmykmanya/shopai-sub000/model"
)

// SQLiteStore is a CartGateway that keeps each cart snapshot as one JSON blob
// row. It suits single-node deployments without Postgres.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ CartGateway = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "storefront.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS carts (
		session_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create carts table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveCart(ctx context.Context, key string, items []models.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(items) == 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE session_key = ?`, key); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO carts (session_key, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`, key, payload); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadCart(ctx context.Context, key string) ([]models.LineItem, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM carts WHERE session_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	var items []models.LineItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}
