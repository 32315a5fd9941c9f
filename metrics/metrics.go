// Package metrics exposes Prometheus metrics for the log server.
//
// It provides a standalone metrics HTTP server and the counters used by the
// hybrid access layer to track storage mode inference outcomes and per-source
// failures during fallback probes.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	inferenceResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logserver",
		Subsystem: "hal",
		Name:      "storage_mode_inferences_total",
		Help:      "Storage mode inference outcomes by resulting mode.",
	}, []string{"mode"})

	sourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logserver",
		Subsystem: "hal",
		Name:      "source_failures_total",
		Help:      "Swallowed per-source failures during fallback probes.",
	}, []string{"source", "op"})
)

// RecordInference counts one inference outcome.
func RecordInference(mode string) {
	inferenceResults.WithLabelValues(mode).Inc()
}

// RecordSourceFailure counts one swallowed source failure.
func RecordSourceFailure(source, op string) {
	sourceFailures.WithLabelValues(source, op).Inc()
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on the given address.
func New(name, listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe starts serving the metrics endpoint, blocking until shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
