// Package metrics exposes Prometheus counters for chain traffic and catalog work.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
)

const namespace = "storefront"

// Outcomes used as label values
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeFailed = "failed"
)

// Purchase flow stages used as label values
const (
	StageSubmitted = "submitted"
	StageConfirmed = "confirmed"
	StageFailed    = "failed"
)

// Metrics holds the storefront collectors
type Metrics struct {
	registry     *prometheus.Registry
	chainReads   *prometheus.CounterVec
	transactions *prometheus.CounterVec
	recomputes   prometheus.Counter
	steps        *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, alongside the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chainReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_reads_total",
			Help:      "Contract reads that reached the RPC node.",
		}, []string{"method", "outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions by kind and final outcome.",
		}, []string{"kind", "outcome"}),
		recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_recomputations_total",
			Help:      "Times the catalog was rebuilt from query results.",
		}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purchase_step_seconds",
			Help:      "Time from submitting a purchase flow transaction to each stage.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind", "stage"}),
	}

	m.registry.MustRegister(
		m.chainReads,
		m.transactions,
		m.recomputes,
		m.steps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRead counts one contract read. It matches evm.ReadObserver.
func (m *Metrics) ObserveRead(method string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.chainReads.WithLabelValues(method, outcome).Inc()
}

// ObserveTx counts one settled or rejected transaction. It matches evm.TxObserver.
func (m *Metrics) ObserveTx(kind storefront.TxKind, status evm.TxStatus) {
	outcome := OutcomeOK
	if status == evm.TxFailed {
		outcome = OutcomeFailed
	}
	m.transactions.WithLabelValues(string(kind), outcome).Inc()
}

// ObserveRecompute counts one catalog rebuild
func (m *Metrics) ObserveRecompute() {
	m.recomputes.Inc()
}

// ObserveSubmitted records how long the node took to accept a purchase flow
// transaction. It matches storefront.TransactionSubmittedHook.
func (m *Metrics) ObserveSubmitted(tc storefront.TransactionContext) error {
	m.steps.WithLabelValues(string(tc.Kind), StageSubmitted).Observe(tc.Duration.Seconds())
	return nil
}

// ObserveConfirmed matches storefront.TransactionConfirmedHook
func (m *Metrics) ObserveConfirmed(tc storefront.TransactionContext) error {
	m.steps.WithLabelValues(string(tc.Kind), StageConfirmed).Observe(tc.Duration.Seconds())
	return nil
}

// ObserveFailed matches storefront.TransactionFailedHook
func (m *Metrics) ObserveFailed(fc storefront.TransactionFailureContext) error {
	m.steps.WithLabelValues(string(fc.Kind), StageFailed).Observe(fc.Duration.Seconds())
	return nil
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
