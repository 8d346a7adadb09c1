package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// OAI-PMH metrics.
var (
	oaiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexml_oai_requests_total",
			Help: "OAI-PMH requests by verb and outcome (ok, protocol error code, or internal).",
		},
		[]string{"verb", "outcome"},
	)

	oaiItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexml_oai_items_total",
			Help: "Headers or records returned by OAI-PMH list verbs.",
		},
		[]string{"verb"},
	)

	recordsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lexml_records_skipped_total",
		Help: "Norms left out of a response because no metadata could be rendered.",
	})
)

var readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "lexml_ready",
	Help: "1 when the last readiness check succeeded.",
})

var initOnce sync.Once

// Init registers metrics in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			oaiRequestsTotal, oaiItemsTotal, recordsSkipped,
			readyGauge,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOAI records one OAI-PMH request. outcome is "ok", an OAI error
// code, or "internal".
func ObserveOAI(verb, outcome string, items int) {
	if verb == "" {
		verb = "none"
	}
	oaiRequestsTotal.WithLabelValues(verb, outcome).Inc()
	if items > 0 {
		oaiItemsTotal.WithLabelValues(verb).Add(float64(items))
	}
}

// SetReady publishes the outcome of the latest readiness check.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// RecordSkipped counts a norm dropped from a response.
func RecordSkipped() {
	recordsSkipped.Inc()
}

// CanonicalPath collapses variable path segments so metric label
// cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	trimmed := strings.TrimSuffix(raw, "/")
	switch {
	case trimmed == "/lexml":
		return "/lexml"
	case strings.HasPrefix(trimmed, "/v1/lexml/publicadores/"):
		return "/v1/lexml/publicadores/:id"
	case strings.HasPrefix(trimmed, "/v1/lexml/provedores/"):
		return "/v1/lexml/provedores/:id"
	case strings.HasPrefix(trimmed, "/norma/"):
		return "/norma/:id"
	}
	return raw
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
