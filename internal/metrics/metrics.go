// Package metrics exposes ingestion and fan-out counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eveflow"

// Metrics holds the collectors. Each instance owns its registry so tests
// and multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	RecordsIngested  *prometheus.CounterVec
	RecordsRejected  prometheus.Counter
	BroadcastDropped prometheus.Counter
	TailErrors       prometheus.Counter
	ForwardErrors    prometheus.Counter
}

// New creates the collectors on a fresh registry, including Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RecordsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Records normalized and stored, by ingestion phase",
		}, []string{"phase"}),
		RecordsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Log lines rejected by the normalizer",
		}),
		BroadcastDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Messages dropped for slow subscribers",
		}),
		TailErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tail_errors_total",
			Help:      "I/O errors seen while tailing the event log",
		}),
		ForwardErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_errors_total",
			Help:      "Records that failed to publish to NATS",
		}),
	}
}

// Gauges are sampled at scrape time.
type Gauges struct {
	Buffered    func() int
	Subscribers func() int
	Offset      func() int64
}

// RegisterGauges adds scrape-time gauges backed by g.
func (m *Metrics) RegisterGauges(g Gauges) {
	f := promauto.With(m.registry)
	if g.Buffered != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_records",
			Help:      "Records currently held in the recency buffer",
		}, func() float64 { return float64(g.Buffered()) })
	}
	if g.Subscribers != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Connected live subscribers",
		}, func() float64 { return float64(g.Subscribers()) })
	}
	if g.Offset != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tail_offset_bytes",
			Help:      "Byte offset reached in the event log",
		}, func() float64 { return float64(g.Offset()) })
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
