package observability

import (
	"time"

	"github.com/gramfinance/gramfin-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the loan engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	loanStates      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gramfin_operation_duration_seconds",
				Help:    "Duration of facade operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramfin_loan_decisions_total",
				Help: "Loan eligibility decisions by outcome.",
			},
			[]string{"outcome"},
		),
		settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramfin_settlements_total",
				Help: "On-chain settlement attempts by operation and result.",
			},
			[]string{"operation", "result"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramfin_external_errors_total",
				Help: "Total errors from external collaborators.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramfin_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramfin_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		loanStates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramfin_loan_transitions_total",
				Help: "Loan lifecycle transitions by target state.",
			},
			[]string{"to"},
		),
	}
}

// RecordOperationDuration records the duration of a facade operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrDecision counts an eligibility outcome ("approved" / "rejected").
func (m *Metrics) IncrDecision(outcome string) {
	m.decisions.WithLabelValues(outcome).Inc()
}

// IncrSettlement counts a settlement attempt result.
func (m *Metrics) IncrSettlement(operation, result string) {
	m.settlements.WithLabelValues(operation, result).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLoanTransition counts a lifecycle transition into a state.
func (m *Metrics) IncrLoanTransition(to domain.LoanStatus) {
	m.loanStates.WithLabelValues(string(to)).Inc()
}

// LedgerSnapshot returns cumulative engine counters for the
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) LedgerSnapshot() *domain.LedgerMetrics {
	approved := getCounterValue(m.decisions, "approved")
	rejected := getCounterValue(m.decisions, "rejected")
	settleFailed := getCounterValue(m.settlements, "disburse", "failure") +
		getCounterValue(m.settlements, "repay", "failure")
	hits := getCounterValue(m.cacheHits, "score")
	misses := getCounterValue(m.cacheMisses, "score")

	approvalRate := float64(0)
	if approved+rejected > 0 {
		approvalRate = approved / (approved + rejected)
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.LedgerMetrics{
		LoansApproved:      int64(approved),
		LoansRejected:      int64(rejected),
		SettlementFailures: int64(settleFailed),
		ApprovalRate:       approvalRate,
		CacheHitRate:       cacheHitRate,
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for
// the given label values.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
