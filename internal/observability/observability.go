// Package observability provides Prometheus metrics for monitoring the
// engine.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/logging"
	"github.com/tphakala/pitchtrack-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Engine   *metrics.EngineMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	engineMetrics, err := metrics.NewEngineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Engine:   engineMetrics,
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Endpoint serves the Prometheus scrape endpoint.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates a scrape endpoint for the given metrics. Returns an
// error if metrics are not enabled in the settings.
func NewEndpoint(settings *conf.Settings, m *Metrics) (*Endpoint, error) {
	if !settings.Metrics.Enabled {
		return nil, fmt.Errorf("metrics not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		metrics:       m,
	}, nil
}

// Start runs the HTTP server for the metrics endpoint. It returns
// immediately; serve errors are logged.
func (e *Endpoint) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.metrics.registry, promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("metrics endpoint failed", "listen", e.listenAddress, "error", err)
		}
	}()
}

// Stop shuts the endpoint down gracefully.
func (e *Endpoint) Stop(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
