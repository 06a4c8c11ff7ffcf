// Package metrics exposes an optional Prometheus endpoint with gauges for
// a long-running collapse/render pipeline. Grounded on the teacher's
// cmd/metrics/metrics_server.go (gauge-vec registration idiom, promhttp
// mux, graceful ListenAndServe error handling), retargeted from hardware
// counter metrics to collapse-pipeline concerns.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const metricPrefix = "flamegraph_"

// Collector holds the gauges the engine updates as it runs. Safe for
// concurrent use by worker goroutines; every Set call is a single atomic
// store inside the prometheus client.
type Collector struct {
	StacksProcessed prometheus.Counter
	ActiveWorkers   prometheus.Gauge
	JobQueueDepth   prometheus.Gauge
}

// NewCollector builds a Collector. Its gauges aren't registered with any
// registry until RegisterWith is called, so tests can build one without
// polluting the default registry.
func NewCollector() *Collector {
	c := &Collector{
		StacksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "stacks_processed_total",
			Help: "Total number of stacks folded by the collapse engine.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "active_workers",
			Help: "Number of collapse worker goroutines currently processing a chunk.",
		}),
		JobQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "job_queue_depth",
			Help: "Number of chunks buffered in the engine's job channel awaiting a worker.",
		}),
	}
	return c
}

// RegisterWith registers the collector's gauges with reg. Idempotent:
// an AlreadyRegisteredError is swallowed the same way the teacher's
// addPrometheusMetrics treats it, since repeated registration happens
// harmlessly across successive collapse runs within one process.
func (c *Collector) RegisterWith(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{c.StacksProcessed, c.ActiveWorkers, c.JobQueueDepth} {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// StartServer brings up the /metrics endpoint on listenAddr in the
// background. It returns the *http.Server so the caller can Shutdown it;
// ListenAndServe errors (other than a clean Shutdown) are logged, not
// returned, since the server runs detached from the caller's goroutine.
func StartServer(listenAddr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	log.Infof("starting metrics server on %s", listenAddr)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server stopped: %v", err)
		}
	}()
	return server
}

// StopServer gracefully shuts the server down, honoring ctx's deadline.
func StopServer(ctx context.Context, server *http.Server) error {
	return server.Shutdown(ctx)
}
