package chainconnector

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the prometheus collectors of one ChainConnector.
type Metrics struct {
	BlocksConnected    prometheus.Counter
	BlocksDisconnected prometheus.Counter
	InvalidBlocks      prometheus.Counter
	Reorgs             prometheus.Counter

	// ReorgDepth observes the number of blocks disconnected by every reorg.
	ReorgDepth prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		BlocksConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "chain",
			Name:      "blocks_connected_total",
			Help:      "Number of blocks connected to the active chain",
		}),
		BlocksDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "chain",
			Name:      "blocks_disconnected_total",
			Help:      "Number of blocks disconnected from the active chain",
		}),
		InvalidBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "chain",
			Name:      "invalid_blocks_total",
			Help:      "Number of blocks that failed validation while being connected",
		}),
		Reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "chain",
			Name:      "reorgs_total",
			Help:      "Number of tip changes that disconnected at least one block",
		}),
		ReorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chaind",
			Subsystem: "chain",
			Name:      "reorg_depth",
			Help:      "Number of blocks disconnected by a reorg",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
}

// Collectors returns all the collectors, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.BlocksConnected, m.BlocksDisconnected, m.InvalidBlocks, m.Reorgs, m.ReorgDepth}
}
