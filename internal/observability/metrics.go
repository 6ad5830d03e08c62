package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the poll loop and fan-out.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal          *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	deliveriesTotal      *prometheus.CounterVec
	deliveryDuration     *prometheus.HistogramVec
	deliveriesInflight   prometheus.Gauge
	fetchedProblems      prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynrelay",
				Name:      "poll_cycles_total",
				Help:      "Total number of poll cycles by result.",
			},
			[]string{"result"},
		),
		classificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynrelay",
				Name:      "classifications_total",
				Help:      "Total number of classified problem records by decision.",
			},
			[]string{"decision"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynrelay",
				Name:      "deliveries_total",
				Help:      "Total number of completed delivery tasks by connector and outcome.",
			},
			[]string{"connector", "outcome"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dynrelay",
				Name:      "delivery_duration_seconds",
				Help:      "Delivery task duration in seconds, retries included, by connector.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"connector"},
		),
		deliveriesInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dynrelay",
				Name:      "deliveries_inflight",
				Help:      "Current number of in-flight delivery tasks.",
			},
		),
		fetchedProblems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dynrelay",
				Name:      "fetched_problems",
				Help:      "Number of problems returned by the most recent fetch.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cyclesTotal,
		m.classificationsTotal,
		m.deliveriesTotal,
		m.deliveryDuration,
		m.deliveriesInflight,
		m.fetchedProblems,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncCycle(result string) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncClassification(decision string) {
	if m == nil {
		return
	}
	m.classificationsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncDelivery(connector, outcome string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(connector, outcome).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(connector string, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.WithLabelValues(connector).Observe(d.Seconds())
}

func (m *Metrics) IncInflight() {
	if m == nil {
		return
	}
	m.deliveriesInflight.Inc()
}

func (m *Metrics) DecInflight() {
	if m == nil {
		return
	}
	m.deliveriesInflight.Dec()
}

func (m *Metrics) SetFetchedProblems(n int) {
	if m == nil {
		return
	}
	m.fetchedProblems.Set(float64(n))
}
