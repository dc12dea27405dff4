package utxostore

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the prometheus collectors of one UTXOStore.
type Metrics struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	Flushes     prometheus.Counter
	CacheSize   prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "utxo",
			Name:      "cache_hits_total",
			Help:      "Number of coin lookups served from the cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "utxo",
			Name:      "cache_misses_total",
			Help:      "Number of coin lookups that went to the database",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "utxo",
			Name:      "flushes_total",
			Help:      "Number of completed cache flushes",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chaind",
			Subsystem: "utxo",
			Name:      "cache_entries",
			Help:      "Number of entries held in the coin cache",
		}),
	}
}

// Collectors returns all the collectors, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.CacheHits, m.CacheMisses, m.Flushes, m.CacheSize}
}
