package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swapam",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swapam",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swapam",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	swapsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swapam",
			Subsystem: "swaps",
			Name:      "created_total",
			Help:      "Total number of swap offers created.",
		},
		[]string{"offer_type"},
	)

	swapTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swapam",
			Subsystem: "swaps",
			Name:      "transitions_total",
			Help:      "Total number of swap status transitions.",
		},
		[]string{"from", "to"},
	)

	matchQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "swapam",
			Subsystem: "matching",
			Name:      "queries_total",
			Help:      "Total number of match scoring queries.",
		},
	)

	matchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "swapam",
			Subsystem: "matching",
			Name:      "results_per_query",
			Help:      "Number of scored matches returned per query.",
			Buckets:   prometheus.LinearBuckets(0, 2, 11), // 0 to 20 candidates
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		swapsCreated,
		swapTransitions,
		matchQueries,
		matchResults,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSwapCreated records a newly created swap offer.
func RecordSwapCreated(offerType string) {
	if offerType == "" {
		offerType = "unknown"
	}
	swapsCreated.WithLabelValues(offerType).Inc()
}

// RecordSwapTransition records a swap status change.
func RecordSwapTransition(from, to string) {
	swapTransitions.WithLabelValues(from, to).Inc()
}

// RecordMatchQuery records one scoring run and how many matches it produced.
func RecordMatchQuery(resultCount int) {
	if resultCount < 0 {
		resultCount = 0
	}
	matchQueries.Inc()
	matchResults.Observe(float64(resultCount))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses IDs out of request paths so Prometheus label
// cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/api"
	}
	resource := parts[1]
	switch len(parts) {
	case 2:
		return "/api/" + resource
	case 3:
		if staticSegments[parts[2]] {
			return "/api/" + resource + "/" + parts[2]
		}
		return "/api/" + resource + "/:id"
	default:
		if staticSegments[parts[2]] {
			return "/api/" + resource + "/" + parts[2] + "/:id"
		}
		return "/api/" + resource + "/:id/" + parts[3]
	}
}

// staticSegments are route words in the third path position that must not
// be collapsed to :id.
var staticSegments = map[string]bool{
	"my-swaps":        true,
	"find":            true,
	"recommendations": true,
	"similar":         true,
	"me":              true,
}
