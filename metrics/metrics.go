// Package metrics exposes the storefront counters through Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Save results reported to PersistSaves.
const (
	SaveOK     = "ok"
	SaveFailed = "error"
)

// Metrics groups the collectors the cart session and checkout paths update.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CartMutations        *prometheus.CounterVec
	PersistSaves         *prometheus.CounterVec
	RestoreFailures      prometheus.Counter
	PromotionEvaluations *prometheus.CounterVec
	Checkouts            prometheus.Counter
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart ledger mutations by operation.",
		}, []string{"op"}),
		PersistSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_saves_total",
			Help:      "Background cart snapshot saves by result.",
		}, []string{"result"}),
		RestoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_restore_failures_total",
			Help:      "Cart loads that failed and fell back to an empty cart.",
		}),
		PromotionEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_evaluations_total",
			Help:      "Promotion code evaluations by outcome.",
		}, []string{"outcome"}),
		Checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Orders successfully placed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CartMutations, m.PersistSaves, m.RestoreFailures, m.PromotionEvaluations, m.Checkouts)
	}
	return m
}

func (m *Metrics) Mutation(op string) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) Save(err error) {
	if m == nil {
		return
	}
	result := SaveOK
	if err != nil {
		result = SaveFailed
	}
	m.PersistSaves.WithLabelValues(result).Inc()
}

func (m *Metrics) RestoreFailed() {
	if m == nil {
		return
	}
	m.RestoreFailures.Inc()
}

// Promotion records an evaluation; an empty reason counts as "applied".
func (m *Metrics) Promotion(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "applied"
	}
	m.PromotionEvaluations.WithLabelValues(reason).Inc()
}

func (m *Metrics) Checkout() {
	if m == nil {
		return
	}
	m.Checkouts.Inc()
}
