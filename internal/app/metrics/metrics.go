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
			Namespace: "bookmate",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookmate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookmate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	webhookCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookmate",
			Subsystem: "webhook",
			Name:      "calls_total",
			Help:      "Apps Script webhook calls by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookmate",
			Subsystem: "webhook",
			Name:      "call_duration_seconds",
			Help:      "Duration of Apps Script webhook calls, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"action"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookmate",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result.",
		},
		[]string{"result"},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookmate",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs by final status.",
		},
		[]string{"status"},
	)

	reconcileSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookmate",
			Subsystem: "reconcile",
			Name:      "skipped_ticks_total",
			Help:      "Scheduler ticks dropped because a run was still in progress.",
		},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bookmate",
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	balanceDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bookmate",
			Subsystem: "reconcile",
			Name:      "balance_drift",
			Help:      "Sum of absolute balance drift found by the last run.",
		},
		[]string{"tenant"},
	)

	pnlDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bookmate",
			Subsystem: "reconcile",
			Name:      "pnl_drift",
			Help:      "Sum of absolute P&L drift found by the last run.",
		},
		[]string{"tenant"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		webhookCalls,
		webhookDuration,
		cacheLookups,
		reconcileRuns,
		reconcileSkipped,
		reconcileDuration,
		balanceDrift,
		pnlDrift,
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

// RecordWebhookCall records one logical webhook call. It matches the
// appsscript.Config OnCall signature once the action is converted to a string.
func RecordWebhookCall(action, outcome string, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}
	webhookCalls.WithLabelValues(action, outcome).Inc()
	webhookDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordReconcileRun records a finished reconciliation and its drift totals.
func RecordReconcileRun(tenant, status string, duration time.Duration, balance, pnl float64) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	reconcileRuns.WithLabelValues(status).Inc()
	reconcileDuration.Observe(duration.Seconds())
	balanceDrift.WithLabelValues(tenant).Set(balance)
	pnlDrift.WithLabelValues(tenant).Set(pnl)
}

// RecordReconcileSkip counts a scheduler tick dropped by the overlap guard.
func RecordReconcileSkip() {
	reconcileSkipped.Inc()
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

// canonicalPath collapses path parameters so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" || len(parts) < 3 {
		return "/" + parts[0]
	}
	// /api/v1/<resource>[/<sub>|/:id]
	out := "/" + strings.Join(parts[:3], "/")
	if len(parts) == 3 {
		return out
	}
	switch parts[2] {
	case "inbox":
		return out + "/:row"
	case "reconcile":
		if parts[3] == "runs" && len(parts) > 4 {
			return out + "/runs/:id"
		}
	}
	return out + "/" + parts[3]
}
