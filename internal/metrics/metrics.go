// Package metrics exposes Prometheus instrumentation for client
// connections. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wlclient"

type Metrics struct {
	requests    *prometheus.CounterVec
	events      *prometheus.CounterVec
	bytesSent   prometheus.Counter
	bytesRecv   prometheus.Counter
	fdsSent     prometheus.Counter
	fdsRecv     prometheus.Counter
	roundtrips  prometheus.Histogram
	liveObjects prometheus.Gauge
	errors      *prometheus.CounterVec
}

// New registers a fresh set of metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent, by interface.",
		}, []string{"interface"}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events received, by interface.",
		}, []string{"interface"}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Bytes written to the compositor socket.",
		}),

		bytesRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bytes read from the compositor socket.",
		}),

		fdsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_fds_total",
			Help:      "File descriptors passed to the compositor.",
		}),

		fdsRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_fds_total",
			Help:      "File descriptors received from the compositor.",
		}),

		roundtrips: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "roundtrip_duration_seconds",
			Help:      "Time taken by sync roundtrips.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),

		liveObjects: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_objects",
			Help:      "Objects in the object table.",
		}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors observed, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Request(iface string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(iface).Inc()
}

func (m *Metrics) Sent(size, fds int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(size))
	m.fdsSent.Add(float64(fds))
}

func (m *Metrics) Event(iface string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(iface).Inc()
}

func (m *Metrics) Received(size, fds int) {
	if m == nil {
		return
	}
	m.bytesRecv.Add(float64(size))
	m.fdsRecv.Add(float64(fds))
}

func (m *Metrics) Roundtrip(d time.Duration) {
	if m == nil {
		return
	}
	m.roundtrips.Observe(d.Seconds())
}

func (m *Metrics) Objects(n int) {
	if m == nil {
		return
	}
	m.liveObjects.Set(float64(n))
}

func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}
