package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "wealthgain"

// Labels holds constant labels applied to all metrics.
type Labels struct {
	Network     string // e.g. "mainnet", "sepolia"
	Environment string // e.g. "production", "development"
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Network != "" {
		labels["network"] = l.Network
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	return labels
}

type Metrics struct {
	// Ingestion counters
	blocksFetched      prometheus.Counter
	transfersCommitted *prometheus.CounterVec
	marksCommitted     prometheus.Counter
	clampedAmounts     *prometheus.CounterVec
	batches            *prometheus.CounterVec
	errors             *prometheus.CounterVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Price resolution
	priceLookups     *prometheus.CounterVec
	priceSourceCalls *prometheus.CounterVec

	// Sliding-window metrics
	admitDuration *prometheus.HistogramVec
	aggregate     *prometheus.GaugeVec

	batchDuration prometheus.Histogram
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	if promLabels := labels.toPrometheusLabels(); len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	m := &Metrics{
		blocksFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blocks_fetched_total",
			Help:      "Total number of blocks fetched from the node",
		}),
		transfersCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transfers_committed_total",
			Help:      "Total number of transfers committed to the ledger by coin",
		}, []string{"coin"}),
		marksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ingestion_marks_committed_total",
			Help:      "Total number of (block, coin) ingestion marks committed",
		}),
		clampedAmounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clamped_amounts_total",
			Help:      "Transfers whose raw amount exceeded the storage ceiling and was clamped",
		}, []string{"coin"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Ingestion batches by outcome (cache_hit, committed, rolled_back)",
		}, []string{"outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		priceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "price",
			Name:      "lookups_total",
			Help:      "Price lookups by the layer that answered them (memo, store, source)",
		}, []string{"layer"}),
		priceSourceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "price",
			Name:      "source_calls_total",
			Help:      "External price source calls by status",
		}, []string{"status"}),
		admitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "window",
			Name:      "admit_duration_seconds",
			Help:      "Time to admit one block into a sliding-window metric",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"metric", "window"}),
		aggregate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "window",
			Name:      "aggregate",
			Help:      "Current aggregate of a sliding-window metric",
		}, []string{"metric", "window"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to ensure one block-range batch end-to-end",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	err := errors.Join(
		reg.Register(m.blocksFetched),
		reg.Register(m.transfersCommitted),
		reg.Register(m.marksCommitted),
		reg.Register(m.clampedAmounts),
		reg.Register(m.batches),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.priceLookups),
		reg.Register(m.priceSourceCalls),
		reg.Register(m.admitDuration),
		reg.Register(m.aggregate),
		reg.Register(m.batchDuration),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants.
const (
	ErrTypeRPC     = "rpc"
	ErrTypePrice   = "price"
	ErrTypeStorage = "storage"

	// ErrTypeValidation counts fetched blocks or transfers rejected by constructor checks.
	ErrTypeValidation = "validation"
)

// Batch outcome constants.
const (
	BatchCacheHit   = "cache_hit"
	BatchCommitted  = "committed"
	BatchRolledBack = "rolled_back"
	BatchFailed     = "failed"
)

// Price lookup layers.
const (
	PriceLayerMemo   = "memo"
	PriceLayerStore  = "store"
	PriceLayerSource = "source"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	m.errors.WithLabelValues(errType).Inc()
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	status := "success"
	if err != nil {
		status = "error"
		m.errors.WithLabelValues(ErrTypeRPC).Inc()
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordPriceLookup records which layer answered a price lookup.
func (m *Metrics) RecordPriceLookup(layer string) {
	m.priceLookups.WithLabelValues(layer).Inc()
}

// RecordPriceSourceCall records an external price source call outcome.
func (m *Metrics) RecordPriceSourceCall(err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errors.WithLabelValues(ErrTypePrice).Inc()
	}
	m.priceSourceCalls.WithLabelValues(status).Inc()
}

// IncClamped records a clamped transfer amount.
func (m *Metrics) IncClamped(coin string) {
	m.clampedAmounts.WithLabelValues(coin).Inc()
}

// RecordBatch records the outcome of an ingestion batch.
func (m *Metrics) RecordBatch(outcome string, durationSeconds float64) {
	m.batches.WithLabelValues(outcome).Inc()
	m.batchDuration.Observe(durationSeconds)
	if outcome == BatchRolledBack {
		m.errors.WithLabelValues(ErrTypeStorage).Inc()
	}
}

// CommitBatch records the rows written by one committed batch.
func (m *Metrics) CommitBatch(blocksFetched int, transfersByCoin map[string]int, marks int) {
	m.blocksFetched.Add(float64(blocksFetched))
	for coin, n := range transfersByCoin {
		m.transfersCommitted.WithLabelValues(coin).Add(float64(n))
	}
	m.marksCommitted.Add(float64(marks))
}

// ObserveAdmission records one sliding-window admission.
func (m *Metrics) ObserveAdmission(metric, window string, aggregate, durationSeconds float64) {
	m.admitDuration.WithLabelValues(metric, window).Observe(durationSeconds)
	m.aggregate.WithLabelValues(metric, window).Set(aggregate)
}
