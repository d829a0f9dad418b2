package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks instruction throughput and contention at the ledger
// boundary.
type LedgerMetrics struct {
	instructions   *prometheus.CounterVec
	lockContention prometheus.Counter
	eventsEmitted  prometheus.Counter
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metric set, registering it on first
// use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_instructions_total",
				Help: "Count of submitted instructions by operation and result.",
			}, []string{"op", "result"}),
			lockContention: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ledger_account_lock_contention_total",
				Help: "Number of submissions rejected because an account was in use.",
			}),
			eventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ledger_events_emitted_total",
				Help: "Total protocol events recorded in receipts.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.instructions,
			ledgerRegistry.lockContention,
			ledgerRegistry.eventsEmitted,
		)
	})
	return ledgerRegistry
}

// ObserveInstruction records one completed submission.
func (m *LedgerMetrics) ObserveInstruction(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.instructions.WithLabelValues(op, result).Inc()
}

// ObserveLockContention records a submission that lost the account-lock race.
func (m *LedgerMetrics) ObserveLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

// ObserveEvents records events captured in a receipt.
func (m *LedgerMetrics) ObserveEvents(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.eventsEmitted.Add(float64(count))
}
