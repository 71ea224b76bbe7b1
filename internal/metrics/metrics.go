package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
)

// Version can be overridden at build time via -ldflags
var Version = "dev"

// Metrics holds the collectors of one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	buildDuration prometheus.Histogram
	buildFailures *prometheus.CounterVec
	drives        prometheus.Gauge
	events        *prometheus.CounterVec
	operations    *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "picodisks_topology_build_duration_seconds",
			Help:    "Duration of full topology builds in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		buildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picodisks_topology_build_failures_total",
			Help: "Topology builds that returned an error, by reason.",
		}, []string{"reason"}),
		drives: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picodisks_drives",
			Help: "Drives in the most recent successful build.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picodisks_device_events_total",
			Help: "Device attach/detach events emitted by the change detector, by kind.",
		}, []string{"kind"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picodisks_device_operations_total",
			Help: "Device operations requested, by operation and result.",
		}, []string{"op", "result"}),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "picodisks_build_info",
		Help:        "Build info of picodisks.",
		ConstLabels: prometheus.Labels{"version": Version},
	})
	buildInfo.Set(1)

	m.registry.MustRegister(m.buildDuration, m.buildFailures, m.drives, m.events, m.operations, buildInfo)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBuild records one topology build
func (m *Metrics) ObserveBuild(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(d.Seconds())
	if err != nil {
		m.buildFailures.WithLabelValues(reason(err)).Inc()
	}
}

// SetDrives records the drive count of a successful build
func (m *Metrics) SetDrives(n int) {
	if m == nil {
		return
	}
	m.drives.Set(float64(n))
}

// IncEvent counts one change-detection event
func (m *Metrics) IncEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// ObserveOperation counts one device operation
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func reason(err error) string {
	var connErr *devsvc.ConnectionError
	switch {
	case errors.Is(err, devsvc.ErrNotConnected):
		return "not_connected"
	case errors.As(err, &connErr):
		return "connection"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
