// Package session owns the live carts. Each session holds one ledger and its
// applied promotion, restores from storage once, and persists every change in
// the background.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cmykmanya/shopai-sub000/cart"
	"github.com/cmykmanya/shopai-sub000/logging"
	"github.com/cmykmanya/shopai-sub000/metrics"
	models "github.com/cmykmanya/shopai-sub000/model"
	"github.com/cmykmanya/shopai-sub000/pricing"
)

var (
	ErrKeyRequired = errors.New("session: key required")
	ErrClosed      = errors.New("session: manager closed")
)

// Gateway persists full cart snapshots. LoadCart returns nil, nil for a key
// that was never saved.
type Gateway interface {
	SaveCart(ctx context.Context, key string, items []models.LineItem) error
	LoadCart(ctx context.Context, key string) ([]models.LineItem, error)
}

type Manager struct {
	gateway Gateway
	policy  pricing.Policy
	promos  cart.Evaluator
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	ledger  []cart.Option

	writer *writer
	group  singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithSaveTimeout bounds each background save. Zero means no deadline.
func WithSaveTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithLedgerOptions is passed to every ledger the manager creates.
func WithLedgerOptions(opts ...cart.Option) Option {
	return func(m *Manager) { m.ledger = append(m.ledger, opts...) }
}

// NewManager starts the background writer when gw is non-nil; without a
// gateway carts live in memory only. Call Close to stop it.
func NewManager(gw Gateway, policy pricing.Policy, promos cart.Evaluator, opts ...Option) *Manager {
	m := &Manager{
		gateway:  gw,
		policy:   policy,
		promos:   promos,
		timeout:  5 * time.Second,
		sessions: map[string]*Session{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	if gw != nil {
		m.writer = newWriter(gw, m.timeout, m.logger, m.metrics)
	}
	return m
}

// Open returns the live session for key, restoring it from the gateway the
// first time. Concurrent first opens share one load. A failed load is logged
// and yields an empty cart.
func (m *Manager) Open(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	if s, ok, err := m.lookup(key); ok || err != nil {
		return s, err
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		if s, ok, err := m.lookup(key); ok || err != nil {
			return s, err
		}
		s := &Session{key: key, mgr: m, ledger: m.restore(ctx, key)}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return nil, ErrClosed
		}
		m.sessions[key] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) lookup(key string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	s, ok := m.sessions[key]
	return s, ok, nil
}

func (m *Manager) restore(ctx context.Context, key string) *cart.Ledger {
	if m.gateway == nil {
		return cart.NewLedger(m.ledger...)
	}
	items, err := m.gateway.LoadCart(ctx, key)
	if err != nil {
		m.metrics.RestoreFailed()
		m.logger.Warn("restore cart, starting empty", zap.String("key", key), zap.Error(err))
		return cart.NewLedger(m.ledger...)
	}
	l := cart.Restore(items, m.ledger...)
	if l.Len() > 0 {
		m.logger.Debug("cart restored", zap.String("key", key), zap.Int("lines", l.Len()))
	}
	return l
}

// Flush blocks until every snapshot queued so far has been handed to the
// gateway.
func (m *Manager) Flush() {
	if m.writer != nil {
		m.writer.drain()
	}
}

// Close refuses further opens, saves pending snapshots and stops the writer.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.writer != nil {
		m.writer.close()
	}
}

func (m *Manager) persist(key string, items []models.LineItem) {
	if m.writer != nil {
		m.writer.enqueue(key, items)
	}
}
