package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	leadsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_captured_total",
			Help: "Leads accepted by intake, by temperature and campaign",
		},
		[]string{"temperature", "campaign"},
	)

	leadDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_duplicates_total",
			Help: "Intake submissions rejected as duplicates of an active lead",
		},
	)

	emailsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_dispatched_total",
			Help: "Scheduled emails handled by dispatch runs, by outcome",
		},
		[]string{"result"},
	)

	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_run_duration_seconds",
			Help:    "Wall time of one dispatch run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	emailEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_events_total",
			Help: "Delivery events received from SES, by type and whether they matched a sent email",
		},
		[]string{"type", "matched"},
	)

	unsubscribes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unsubscribes_total",
			Help: "Unsubscribe requests, by result",
		},
		[]string{"result"},
	)

	integrationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_errors_total",
			Help: "Total number of integration errors",
		},
		[]string{"service"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern keeps label cardinality bounded: query strings carry tokens
// and unmatched paths are arbitrary.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func RecordLeadCaptured(temperature, campaign string) {
	leadsCaptured.WithLabelValues(temperature, campaign).Inc()
}

func RecordLeadDuplicate() {
	leadDuplicates.Inc()
}

// RecordDispatch adds one run's counters.
func RecordDispatch(sent, failed, skipped int, took time.Duration) {
	emailsDispatched.WithLabelValues("sent").Add(float64(sent))
	emailsDispatched.WithLabelValues("failed").Add(float64(failed))
	emailsDispatched.WithLabelValues("skipped").Add(float64(skipped))
	dispatchDuration.Observe(took.Seconds())
}

func RecordEmailEvent(eventType string, matched bool) {
	emailEvents.WithLabelValues(eventType, strconv.FormatBool(matched)).Inc()
}

func RecordUnsubscribe(result string) {
	unsubscribes.WithLabelValues(result).Inc()
}

func RecordIntegrationError(service string) {
	integrationErrors.WithLabelValues(service).Inc()
}
