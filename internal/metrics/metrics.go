// Package metrics exposes the monitor's Prometheus metrics on a private registry.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Collector records orchestrator activity
type Collector struct {
	artifactsPlaced  prometheus.Counter
	launches         *prometheus.CounterVec
	tracked          prometheus.Gauge
	sweeps           *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	processesEnded   prometheus.Counter
	cleanupFailures  prometheus.Counter
	lockDegraded     prometheus.Counter
	stateTransitions *prometheus.CounterVec
	childExits       *prometheus.CounterVec
	childRuntime     prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollector creates a collector; namespace defaults to "dsq"
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "dsq"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.artifactsPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifacts_placed_total",
		Help:      "Total number of artifacts copied from the template",
	})
	c.launches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "launches_total",
		Help:      "Total number of start requests by result",
	}, []string{"result"})
	c.tracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_processes",
		Help:      "Number of processes currently tracked",
	})
	c.sweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Total number of liveness sweeps by status",
	}, []string{"status"})
	c.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of liveness sweeps including the cleanup grace delay",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})
	c.processesEnded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "processes_ended_total",
		Help:      "Total number of tracked processes observed dead",
	})
	c.cleanupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_failures_total",
		Help:      "Total number of artifacts that could not be deleted",
	})
	c.lockDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_degraded_total",
		Help:      "Total number of registry operations skipped because the registry is degraded",
	})
	c.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_transitions_total",
		Help:      "Total number of tracked process state transitions",
	}, []string{"from", "to"})
	c.childExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "child_exits_total",
		Help:      "Total number of launched children reaped, by exit result",
	}, []string{"result"})
	c.childRuntime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "child_runtime_seconds",
		Help:      "Wall time between spawning a child and reaping it",
		Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600},
	})

	c.registry.MustRegister(
		c.artifactsPlaced,
		c.launches,
		c.tracked,
		c.sweeps,
		c.sweepDuration,
		c.processesEnded,
		c.cleanupFailures,
		c.lockDegraded,
		c.stateTransitions,
		c.childExits,
		c.childRuntime,
	)

	return c
}

// ArtifactPlaced records a template copy
func (c *Collector) ArtifactPlaced() {
	c.artifactsPlaced.Inc()
}

// Launch records the outcome of a start request
func (c *Collector) Launch(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.launches.WithLabelValues(result).Inc()
}

// Tracked sets the number of tracked processes
func (c *Collector) Tracked(n int) {
	c.tracked.Set(float64(n))
}

// Sweep records one sweep
func (c *Collector) Sweep(d time.Duration, ended, cleanupFailures int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.sweeps.WithLabelValues(status).Inc()
	c.sweepDuration.Observe(d.Seconds())
	c.processesEnded.Add(float64(ended))
	c.cleanupFailures.Add(float64(cleanupFailures))
}

// CleanupFailed records artifact deletion failures outside a sweep
func (c *Collector) CleanupFailed(n int) {
	c.cleanupFailures.Add(float64(n))
}

// LockDegraded records a skipped registry operation
func (c *Collector) LockDegraded() {
	c.lockDegraded.Inc()
}

// Transition records a state change of a tracked process
func (c *Collector) Transition(from, to string) {
	c.stateTransitions.WithLabelValues(from, to).Inc()
}

// ChildExited records a reaped child. A negative code means the wait itself failed.
func (c *Collector) ChildExited(code int, d time.Duration) {
	result := "success"
	switch {
	case code < 0:
		result = "wait_error"
	case code > 0:
		result = "error"
	}
	c.childExits.WithLabelValues(result).Inc()
	c.childRuntime.Observe(d.Seconds())
}

// Registry returns the underlying Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteText writes every metric family in the Prometheus text format
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Totals sums every counter and gauge family by name, across label values. Histograms
// report their sample count.
func (c *Collector) Totals() (map[string]float64, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		totals[mf.GetName()] = familyTotal(mf)
	}
	return totals, nil
}

func familyTotal(mf *dto.MetricFamily) float64 {
	var sum float64
	for _, m := range mf.GetMetric() {
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			sum += m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			sum += m.GetGauge().GetValue()
		case dto.MetricType_HISTOGRAM:
			sum += float64(m.GetHistogram().GetSampleCount())
		}
	}
	return sum
}
