package savings

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/warp/savings-engine/generic"
)

const metricsSubsystem = "savings"

// Metrics holds the ledger's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	entries     *prometheus.CounterVec
	amounts     *prometheus.HistogramVec
	operations  *prometheus.CounterVec
	consistency prometheus.Counter
	repairs     prometheus.Counter
	lockWait    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "ledger_entries_total",
			Help:      "Deposit and withdraw attempts by outcome.",
		}, []string{"type", "result"}),
		amounts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "ledger_entry_amount",
			Help:      "Amounts of recorded ledger entries.",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		}, []string{"type"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "goal_operations_total",
			Help:      "Goal store operations by outcome.",
		}, []string{"op", "result"}),
		consistency: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "consistency_failures_total",
			Help:      "Goals whose cached balance disagreed with the ledger.",
		}),
		repairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "reconcile_repairs_total",
			Help:      "Cached balances rewritten from the ledger.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a per-goal lock.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.entries, m.amounts, m.operations, m.consistency, m.repairs, m.lockWait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) entry(txType generic.TransactionType, amount decimal.Decimal, err error) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(string(txType), resultLabel(err)).Inc()
	if err == nil {
		f, _ := amount.Float64()
		m.amounts.WithLabelValues(string(txType)).Observe(f)
	}
}

func (m *Metrics) operation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) consistencyFailure() {
	if m == nil {
		return
	}
	m.consistency.Inc()
}

func (m *Metrics) repaired() {
	if m == nil {
		return
	}
	m.repairs.Inc()
}

func (m *Metrics) observeLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case generic.IsClientError(err):
		return "invalid"
	case generic.IsNotFound(err):
		return "not_found"
	case errors.Is(err, generic.ErrInsufficientBalance):
		return "insufficient_balance"
	case generic.IsConflict(err):
		return "conflict"
	case generic.NeedsOperatorAttention(err):
		return "consistency_failure"
	case generic.IsRetryable(err):
		return "contention"
	default:
		return "error"
	}
}
