package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	// Operation metrics
	OpsTotal    prometheus.CounterVec
	OpsDuration prometheus.Histogram
	OpErrors    prometheus.CounterVec

	// Keyspace metrics
	EntriesTotal        prometheus.Gauge
	MemoryEstimateBytes prometheus.Gauge
	HitsTotal           prometheus.Counter
	MissesTotal         prometheus.Counter

	// Eviction metrics
	EvictionsTotal  prometheus.CounterVec
	ExpiredTotal    prometheus.Counter
	SweepDuration   prometheus.Histogram
	CapacityRefused prometheus.Counter

	// Transaction metrics
	TransactionsTotal  prometheus.CounterVec
	ActiveTransactions prometheus.Gauge
	WatchedKeys        prometheus.Gauge

	// Index metrics
	IndexesTotal      prometheus.Gauge
	IndexLookupsTotal prometheus.Counter

	// Feed metrics
	FeedEventsTotal     prometheus.Counter
	FeedSubscribersTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics against reg.
// Tests pass a fresh prometheus.NewRegistry to avoid duplicate
// registration across engine instances.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OpsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "engine",
			Name:      "ops_total",
			Help:      "Total number of operations by kind",
		}, []string{"kind"}),
		OpsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fastmem",
			Subsystem: "engine",
			Name:      "ops_duration_seconds",
			Help:      "Histogram of operation durations",
			Buckets:   prometheus.DefBuckets,
		}),
		OpErrors: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "engine",
			Name:      "op_errors_total",
			Help:      "Total number of failed operations by error code",
		}, []string{"code"}),

		EntriesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastmem",
			Subsystem: "keyspace",
			Name:      "entries_total",
			Help:      "Current number of entries in the directory",
		}),
		MemoryEstimateBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastmem",
			Subsystem: "keyspace",
			Name:      "memory_estimate_bytes",
			Help:      "Estimated memory held by stored values",
		}),
		HitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "keyspace",
			Name:      "hits_total",
			Help:      "Total number of reads that found a live entry",
		}),
		MissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "keyspace",
			Name:      "misses_total",
			Help:      "Total number of reads against absent or expired keys",
		}),

		EvictionsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "eviction",
			Name:      "evictions_total",
			Help:      "Total number of evictions by policy",
		}, []string{"policy"}),
		ExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "eviction",
			Name:      "expired_total",
			Help:      "Total number of entries removed by TTL expiry",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fastmem",
			Subsystem: "eviction",
			Name:      "sweep_duration_seconds",
			Help:      "Histogram of TTL sweep durations",
			Buckets:   prometheus.DefBuckets,
		}),
		CapacityRefused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "eviction",
			Name:      "capacity_refused_total",
			Help:      "Total number of writes refused because eviction could not restore capacity",
		}),

		TransactionsTotal: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "tx",
			Name:      "transactions_total",
			Help:      "Total number of resolved transactions by outcome",
		}, []string{"outcome"}),
		ActiveTransactions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastmem",
			Subsystem: "tx",
			Name:      "active_total",
			Help:      "Current number of open transactions",
		}),
		WatchedKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastmem",
			Subsystem: "tx",
			Name:      "watched_keys_total",
			Help:      "Current number of watched keys across open transactions",
		}),

		IndexesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastmem",
			Subsystem: "index",
			Name:      "indexes_total",
			Help:      "Current number of registered indexes",
		}),
		IndexLookupsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "index",
			Name:      "lookups_total",
			Help:      "Total number of index lookups",
		}),

		FeedEventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fastmem",
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Total number of change events published",
		}),
		FeedSubscribersTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastmem",
			Subsystem: "feed",
			Name:      "subscribers_total",
			Help:      "Current number of change feed subscribers",
		}),
	}
}

// RecordOp records a completed operation
func (m *Metrics) RecordOp(kind string, seconds float64) {
	m.OpsTotal.WithLabelValues(kind).Inc()
	m.OpsDuration.Observe(seconds)
}

// RecordOpError records a failed operation by error code
func (m *Metrics) RecordOpError(code string) {
	m.OpErrors.WithLabelValues(code).Inc()
}

// RecordHit records a read that found a live entry
func (m *Metrics) RecordHit() { m.HitsTotal.Inc() }

// RecordMiss records a read against an absent or expired key
func (m *Metrics) RecordMiss() { m.MissesTotal.Inc() }

// RecordEviction records a capacity eviction under the given policy
func (m *Metrics) RecordEviction(policy string) {
	m.EvictionsTotal.WithLabelValues(policy).Inc()
}

// RecordExpiry records a TTL removal
func (m *Metrics) RecordExpiry() { m.ExpiredTotal.Inc() }

// RecordSweep records one TTL sweep pass
func (m *Metrics) RecordSweep(seconds float64) {
	m.SweepDuration.Observe(seconds)
}

// RecordTransaction records a resolved transaction
func (m *Metrics) RecordTransaction(outcome string) {
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}

// UpdateKeyspace updates entry count and memory gauges
func (m *Metrics) UpdateKeyspace(entries int, memoryBytes int64) {
	m.EntriesTotal.Set(float64(entries))
	m.MemoryEstimateBytes.Set(float64(memoryBytes))
}
