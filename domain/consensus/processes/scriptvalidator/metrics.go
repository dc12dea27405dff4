package scriptvalidator

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the prometheus collectors of one ScriptValidator.
type Metrics struct {
	// ScriptChecks counts the transaction inputs whose scripts were run.
	ScriptChecks prometheus.Counter

	// SkippedBlocks counts the blocks whose scripts were skipped under the
	// assumed-valid rule.
	SkippedBlocks prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		ScriptChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "scripts",
			Name:      "checks_total",
			Help:      "Number of transaction inputs whose scripts were executed",
		}),
		SkippedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chaind",
			Subsystem: "scripts",
			Name:      "skipped_blocks_total",
			Help:      "Number of blocks whose scripts were assumed valid",
		}),
	}
}

// Collectors returns all the collectors, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.ScriptChecks, m.SkippedBlocks}
}
