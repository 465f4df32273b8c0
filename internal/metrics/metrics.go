// Package metrics exposes Prometheus collectors for configuration cycles.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"api_config/internal/config"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector records fetch and transform metrics. A nil *Collector is valid
// and records nothing.
//
// Metrics:
//   - <ns>_fetch_duration_seconds{resource,outcome}
//   - <ns>_fetch_errors_total{resource,kind}
//   - <ns>_cycles_total{outcome}
//   - <ns>_entities_loaded{kind}
//   - <ns>_entities_skipped_total{stage}
//   - <ns>_last_success_timestamp_seconds
type Collector struct {
	registry *prometheus.Registry

	fetchDuration   *prometheus.HistogramVec
	fetchErrors     *prometheus.CounterVec
	cycles          *prometheus.CounterVec
	entitiesLoaded  *prometheus.GaugeVec
	entitiesSkipped *prometheus.CounterVec
	lastSuccess     prometheus.Gauge
}

// NewCollector creates and registers the collectors. A nil registry gets a
// fresh private one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "api_config"
	}

	c := &Collector{
		registry: registry,
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of configuration API requests in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"resource", "outcome"},
		),
		fetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Configuration API request failures by kind (transport, status, decode)",
			},
			[]string{"resource", "kind"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Fetch-transform cycles by outcome",
			},
			[]string{"outcome"},
		),
		entitiesLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entities_loaded",
				Help:      "Entities in the last transformed configuration",
			},
			[]string{"kind"},
		),
		entitiesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entities_skipped_total",
				Help:      "Entities dropped during transformation",
			},
			[]string{"stage"},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful cycle",
			},
		),
	}

	registry.MustRegister(
		c.fetchDuration,
		c.fetchErrors,
		c.cycles,
		c.entitiesLoaded,
		c.entitiesSkipped,
		c.lastSuccess,
	)

	return c
}

// Registry returns the registry the collectors are registered with
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveFetch records one API request.
func (c *Collector) ObserveFetch(resource string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.fetchDuration.WithLabelValues(resource, outcome).Observe(duration.Seconds())
}

// RecordFetchError counts a failed request by failure kind.
func (c *Collector) RecordFetchError(resource, kind string) {
	if c == nil {
		return
	}
	c.fetchErrors.WithLabelValues(resource, kind).Inc()
}

// RecordCycle counts a finished cycle.
func (c *Collector) RecordCycle(success bool, at time.Time) {
	if c == nil {
		return
	}
	if !success {
		c.cycles.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	c.cycles.WithLabelValues(OutcomeSuccess).Inc()
	c.lastSuccess.Set(float64(at.Unix()))
}

// SetLoaded sets the entity counts of the latest configuration.
func (c *Collector) SetLoaded(providers, models, pipelines int) {
	if c == nil {
		return
	}
	c.entitiesLoaded.WithLabelValues("provider").Set(float64(providers))
	c.entitiesLoaded.WithLabelValues("model").Set(float64(models))
	c.entitiesLoaded.WithLabelValues("pipeline").Set(float64(pipelines))
}

// RecordSkipped counts one dropped entity.
func (c *Collector) RecordSkipped(stage string) {
	if c == nil {
		return
	}
	c.entitiesSkipped.WithLabelValues(stage).Inc()
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
