// Package profiling serves prometheus metrics and pprof over HTTP.
package profiling

import (
	"net/http"

	// Required for profiling
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/utxonode/chaind/infrastructure/logger"
	"github.com/utxonode/chaind/util/panics"
)

// Start serves the metrics of gatherer on /metrics and the pprof
// endpoints on /debug/pprof, both on listenAddr.
func Start(listenAddr string, gatherer prometheus.Gatherer, log *logger.Logger) {
	spawn := panics.GoroutineWrapperFunc(log)
	spawn("profiling.Start", func() {
		log.Infof("Metrics and profile server listening on %s", listenAddr)
		http.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		profileRedirect := http.RedirectHandler("/debug/pprof", http.StatusSeeOther)
		http.Handle("/", profileRedirect)
		log.Error(http.ListenAndServe(listenAddr, nil))
	})
}
