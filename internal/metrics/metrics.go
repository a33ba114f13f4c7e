// Package metrics exposes chain-state counters and gauges to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainstate"

// Block admission outcomes.
const (
	ResultConnected = "connected" // Became the new tip.
	ResultIgnored   = "ignored"   // Known, side branch, or outside the fork bounds.
	ResultRejected  = "rejected"  // Failed with an error.
)

// Metrics holds the collectors registered for one chain.
type Metrics struct {
	// BlocksProcessed counts admissions by outcome.
	BlocksProcessed *prometheus.CounterVec
	// Reorgs counts committed reorganizations.
	Reorgs prometheus.Counter
	// ReorgDepth records how many blocks each reorganization disconnected.
	ReorgDepth prometheus.Histogram
	// ChainHeight tracks the best tip height.
	ChainHeight prometheus.Gauge
	// TotalDifficulty tracks the saturating total difficulty of the best chain.
	TotalDifficulty prometheus.Gauge
	// MempoolSize tracks pending transactions.
	MempoolSize prometheus.Gauge

	startTime time.Time
}

// New registers the chain collectors with reg. Uptime is measured from startTime.
func New(reg prometheus.Registerer, startTime time.Time) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{startTime: startTime}

	m.BlocksProcessed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks submitted for admission",
		},
		[]string{"result"},
	)
	m.Reorgs = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reorgs_total",
		Help:      "Total number of chain reorganizations",
	})
	m.ReorgDepth = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reorg_depth_blocks",
		Help:      "Blocks disconnected per reorganization",
		Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
	})
	m.ChainHeight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_height",
		Help:      "Height of the best block",
	})
	m.TotalDifficulty = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "total_difficulty",
		Help:      "Total difficulty of the best chain",
	})
	m.MempoolSize = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mempool_transactions",
		Help:      "Number of transactions waiting in the mempool",
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the node started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// ObserveBlock records one admission result and the resulting tip.
func (m *Metrics) ObserveBlock(result string, height, totalDifficulty uint64) {
	m.BlocksProcessed.WithLabelValues(result).Inc()
	m.ChainHeight.Set(float64(height))
	m.TotalDifficulty.Set(float64(totalDifficulty))
}

// ObserveReorg records a committed reorganization of the given depth.
func (m *Metrics) ObserveReorg(depth int) {
	m.Reorgs.Inc()
	m.ReorgDepth.Observe(float64(depth))
}

// ObserveMempool records the mempool size.
func (m *Metrics) ObserveMempool(size int) {
	m.MempoolSize.Set(float64(size))
}
