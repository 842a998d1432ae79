// Package metrics reports counters, gauges and histograms to a prometheus
// registry. Metrics are addressed by group and name and created on first use:
//
//	metrics.IncrCounterWithDimGroup("net", "datagram_recv_total", 1, metrics.Dimension{"service": "reserve_seats"})
//
// The first report of a metric fixes its label names. A later report with a
// different label set is dropped and counted in flightrpc_metrics_rejected_total.
package metrics

import (
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flightrpc"

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

type metric struct {
	kind   kind
	labels []string
	vec    prometheus.Collector
}

// Registry owns the collectors created through the report functions.
type Registry struct {
	reg      *prometheus.Registry
	mu       sync.Mutex
	metrics  map[string]*metric
	extrema  map[string]float64
	rejected prometheus.Counter
}

// NewRegistry creates a registry with the go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg:     prometheus.NewRegistry(),
		metrics: make(map[string]*metric),
		extrema: make(map[string]float64),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_rejected_total",
			Help:      "Reports dropped because their labels did not match the first report.",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.rejected,
	)
	return r
}

// Prometheus returns the underlying prometheus registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func sanitize(s string) string {
	return invalidChars.ReplaceAllString(strings.TrimSpace(s), "_")
}

// Report records v for group/name according to policy.
func (r *Registry) Report(group, name string, v Value, policy Policy, dim Dimension) {
	if name == "" {
		return
	}
	k := policy.kind()
	labels := dim.Keys()
	group, name = sanitize(group), sanitize(name)
	m, ok := r.lookup(group, name, k, labels)
	if !ok {
		r.rejected.Inc()
		return
	}

	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = dim[l]
	}

	switch vec := m.vec.(type) {
	case *prometheus.CounterVec:
		if v < 0 {
			r.rejected.Inc()
			return
		}
		vec.WithLabelValues(values...).Add(float64(v))
	case *prometheus.GaugeVec:
		g := vec.WithLabelValues(values...)
		key := group + "/" + name + "/" + strings.Join(values, "\xff")
		switch policy {
		case PolicyMax:
			r.setIf(key, g, v, func(old, nv float64) bool { return nv > old })
		case PolicyMin:
			r.setIf(key, g, v, func(old, nv float64) bool { return nv < old })
		default:
			g.Set(float64(v))
		}
	case *prometheus.HistogramVec:
		vec.WithLabelValues(values...).Observe(float64(v))
	}
}

// setIf sets the gauge when it has no value yet or better reports true.
func (r *Registry) setIf(key string, g prometheus.Gauge, v Value, better func(old, nv float64) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.extrema[key]; ok && !better(old, float64(v)) {
		return
	}
	r.extrema[key] = float64(v)
	g.Set(float64(v))
}

func (r *Registry) lookup(group, name string, k kind, labels []string) (*metric, bool) {
	key := group + "/" + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[key]; ok {
		if m.kind != k || !sameLabels(m.labels, labels) {
			return nil, false
		}
		return m, true
	}

	var vec prometheus.Collector
	switch k {
	case kindCounter:
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: group, Name: name, Help: name,
		}, labels)
	case kindHistogram:
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: group, Name: name, Help: name,
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, labels)
	default:
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: group, Name: name, Help: name,
		}, labels)
	}
	if err := r.reg.Register(vec); err != nil {
		return nil, false
	}

	m := &metric{kind: k, labels: labels, vec: vec}
	r.metrics[key] = m
	return m, true
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
