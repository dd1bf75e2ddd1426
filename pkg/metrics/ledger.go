package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const (
	namespace = "cip"

	// ResultOK labels a successful ledger operation; failures use the error code.
	ResultOK = "ok"
)

// LedgerMetrics tracks investment ledger outcomes.
type LedgerMetrics struct {
	placements    *prometheus.CounterVec
	placedAmount  prometheus.Counter
	cancellations *prometheus.CounterVec
	refunded      prometheus.Counter
	bonusAccrued  *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer. A
// nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investment_placements_total",
			Help:      "Investment placement attempts by outcome code.",
		}, []string{"result"}),
		placedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investment_placed_amount_eur_total",
			Help:      "Capital committed through accepted placements.",
		}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_cancellations_total",
			Help:      "Project cancellation attempts by outcome code.",
		}, []string{"result"}),
		refunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_refunded_amount_eur_total",
			Help:      "Capital returned to free_capital by cancellations.",
		}),
		bonusAccrued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_bonus_accrued_eur_total",
			Help:      "Referral bonus accrued by receiver kind.",
		}, []string{"receiver"}),
	}
	reg.MustRegister(m.placements, m.placedAmount, m.cancellations, m.refunded, m.bonusAccrued)
	return m
}

// ObservePlacement records a placement outcome; amount counts only on success.
func (m *LedgerMetrics) ObservePlacement(result string, amount decimal.Decimal) {
	if m == nil || m.placements == nil {
		return
	}
	m.placements.WithLabelValues(normalizeLabel(result)).Inc()
	if result == ResultOK {
		m.placedAmount.Add(amount.InexactFloat64())
	}
}

// ObserveCancellation records a cancellation outcome and the refunded total.
func (m *LedgerMetrics) ObserveCancellation(result string, refunded decimal.Decimal) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(normalizeLabel(result)).Inc()
	if result == ResultOK {
		m.refunded.Add(refunded.InexactFloat64())
	}
}

// ObserveBonus records an accrual for a referrer or the fallback account.
func (m *LedgerMetrics) ObserveBonus(receiver string, amount decimal.Decimal) {
	if m == nil || m.bonusAccrued == nil {
		return
	}
	m.bonusAccrued.WithLabelValues(normalizeLabel(receiver)).Add(amount.InexactFloat64())
}
