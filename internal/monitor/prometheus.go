package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatkernel"

type collectors struct {
	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	cacheSize  prometheus.GaugeFunc
	hitRate    prometheus.GaugeFunc
}

func newCollectors(m *Monitor) *collectors {
	return &collectors{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Finished dispatches by command and outcome.",
		}, []string{"command", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency by command.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		cacheSize: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Live entries in the shared cache.",
		}, func() float64 {
			if m.cache == nil {
				return 0
			}
			return float64(m.cache.Stats().Count)
		}),
		hitRate: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_hit_ratio",
			Help:      "Cache hits divided by lookups.",
		}, func() float64 {
			if m.cache == nil {
				return 0
			}
			return m.cache.Stats().HitRate
		}),
	}
}

func (c *collectors) observe(command, outcome string, d time.Duration) {
	if command == "" {
		command = "unknown"
	}
	c.dispatches.WithLabelValues(command, outcome).Inc()
	c.latency.WithLabelValues(command).Observe(d.Seconds())
}

// Register adds the monitor's collectors to reg.
func (m *Monitor) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.metrics.dispatches,
		m.metrics.latency,
		m.metrics.cacheSize,
		m.metrics.hitRate,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
