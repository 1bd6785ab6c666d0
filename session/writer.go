package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cmykmanya/shopai-sub000/metrics"
	models "github.com/cmykmanya/shopai-sub000/model"
)

// writer saves cart snapshots in the background. Pending snapshots are kept
// per key and a newer one replaces an unsaved older one, so enqueue never
// waits on storage and the last state always wins.
type writer struct {
	gw      Gateway
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string][]models.LineItem
	order   []string
	closed  bool

	// drainMu serialises drains so two snapshots of one key are never in
	// flight at once.
	drainMu sync.Mutex

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newWriter(gw Gateway, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *writer {
	w := &writer{
		gw:      gw,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		pending: map[string][]models.LineItem{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(key string, items []models.LineItem) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("cart snapshot dropped after shutdown", zap.String("key", key))
		return
	}
	if _, queued := w.pending[key]; !queued {
		w.order = append(w.order, key)
	}
	w.pending[key] = items
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
			w.drain()
		}
	}
}

func (w *writer) next() (string, []models.LineItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.order) == 0 {
		return "", nil, false
	}
	key := w.order[0]
	w.order = w.order[1:]
	items := w.pending[key]
	delete(w.pending, key)
	return key, items, true
}

func (w *writer) drain() {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()
	for {
		key, items, ok := w.next()
		if !ok {
			return
		}
		w.save(key, items)
	}
}

func (w *writer) save(key string, items []models.LineItem) {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	err := w.gw.SaveCart(ctx, key, items)
	w.metrics.Save(err)
	if err != nil {
		w.logger.Error("save cart snapshot",
			zap.String("key", key),
			zap.Int("items", len(items)),
			zap.Error(err))
	}
}

// close stops the worker and saves whatever is still pending.
func (w *writer) close() {
	w.closeOnce.Do(func() {
		close(w.done)
		<-w.stopped
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.drain()
	})
}
