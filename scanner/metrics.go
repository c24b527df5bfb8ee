package scanner

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks scan throughput and outcomes. All collectors are registered
// against the injected Registerer so callers control the namespace.
type Metrics struct {
	scanDuration       *prometheus.HistogramVec
	cyclesFound        prometheus.Counter
	pathsOptimized     prometheus.Counter
	optimizerFailures  prometheus.Counter
	opportunitiesFound prometheus.Counter
	lastScanBlock      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arbscan",
			Name:      "scan_phase_duration_seconds",
			Help:      "Wall time spent in each scan phase.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"phase"}),
		cyclesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbscan",
			Name:      "cycles_found_total",
			Help:      "Candidate cycles discovered by the path finder.",
		}),
		pathsOptimized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbscan",
			Name:      "paths_optimized_total",
			Help:      "Cycles that completed loan sizing.",
		}),
		optimizerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbscan",
			Name:      "optimizer_failures_total",
			Help:      "Cycles dropped because sizing failed.",
		}),
		opportunitiesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbscan",
			Name:      "opportunities_total",
			Help:      "Sized cycles that cleared the profit floor.",
		}),
		lastScanBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbscan",
			Name:      "last_scan_block",
			Help:      "Block number of the most recent completed scan.",
		}),
	}
	reg.MustRegister(
		m.scanDuration,
		m.cyclesFound,
		m.pathsOptimized,
		m.optimizerFailures,
		m.opportunitiesFound,
		m.lastScanBlock,
	)
	return m
}
