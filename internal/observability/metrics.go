// Package observability exposes Prometheus metrics for simulation runs.
// Batch and ensemble deployments scrape these to watch throughput and
// abort rates without parsing logs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the simulator's Prometheus collectors, registered on a
// private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsAborted   prometheus.Counter
	ticksTotal    prometheus.Counter
	runDuration   prometheus.Histogram

	finalCO2PPM    prometheus.Gauge
	finalXCRSupply prometheus.Gauge
	finalTempC     prometheus.Gauge
}

// New creates and registers the simulator metric set.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gcrsim",
		Name:      "runs_started_total",
		Help:      "Simulation runs started.",
	})
	m.runsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gcrsim",
		Name:      "runs_completed_total",
		Help:      "Simulation runs that completed every tick.",
	})
	m.runsAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gcrsim",
		Name:      "runs_aborted_total",
		Help:      "Simulation runs aborted at a tick boundary.",
	})
	m.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gcrsim",
		Name:      "ticks_total",
		Help:      "Annual ticks completed across all runs.",
	})
	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gcrsim",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of a simulation run.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	m.finalCO2PPM = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gcrsim",
		Name:      "last_run_final_co2_ppm",
		Help:      "Final atmospheric CO2 of the most recent completed run.",
	})
	m.finalXCRSupply = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gcrsim",
		Name:      "last_run_final_xcr_supply",
		Help:      "Final XCR supply of the most recent completed run.",
	})
	m.finalTempC = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gcrsim",
		Name:      "last_run_final_temperature_celsius",
		Help:      "Final temperature anomaly of the most recent completed run.",
	})

	m.registry.MustRegister(
		m.runsStarted, m.runsCompleted, m.runsAborted,
		m.ticksTotal, m.runDuration,
		m.finalCO2PPM, m.finalXCRSupply, m.finalTempC,
	)
	return m
}

// Registry returns the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RunStarted records a run start.
func (m *Metrics) RunStarted() { m.runsStarted.Inc() }

// RunCompleted records a successful run and its headline outputs.
func (m *Metrics) RunCompleted(duration time.Duration, ticks int, finalCO2, finalSupply, finalTemp float64) {
	m.runsCompleted.Inc()
	m.runDuration.Observe(duration.Seconds())
	m.ticksTotal.Add(float64(ticks))
	m.finalCO2PPM.Set(finalCO2)
	m.finalXCRSupply.Set(finalSupply)
	m.finalTempC.Set(finalTemp)
}

// RunAborted records an aborted run.
func (m *Metrics) RunAborted(duration time.Duration, completedTicks int) {
	m.runsAborted.Inc()
	m.runDuration.Observe(duration.Seconds())
	m.ticksTotal.Add(float64(completedTicks))
}
