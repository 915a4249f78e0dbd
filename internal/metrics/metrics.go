// Package metrics holds the Prometheus collectors of the rewards engine.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wannagonna"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	badgeGrants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "badge_grants_total",
			Help:      "Badge grant attempts by result.",
		},
		[]string{"result"},
	)

	badgeRevokes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "badge_revokes_total",
			Help:      "Badge revoke attempts by result.",
		},
		[]string{"result"},
	)

	xpAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "xp_awarded_total",
			Help:      "XP points credited to members by source type.",
		},
		[]string{"type"},
	)

	referralOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "referral_outcomes_total",
			Help:      "Referral signups by outcome.",
		},
		[]string{"outcome"},
	)

	imageLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "images",
			Name:      "lookups_total",
			Help:      "Badge image resolutions by source.",
		},
		[]string{"source"},
	)

	imageProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "images",
			Name:      "probe_duration_seconds",
			Help:      "Duration of blob store probes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "outcalls_total",
			Help:      "Notification outcalls by callable and result.",
		},
		[]string{"callable", "result"},
	)

	reconcilerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "runs_total",
			Help:      "Earned-set reconciliation runs.",
		},
		[]string{"success"},
	)

	reconcilerDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "duplicates_removed_total",
			Help:      "Duplicate earned-badge records removed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		badgeGrants,
		badgeRevokes,
		xpAwarded,
		referralOutcomes,
		imageLookups,
		imageProbeDuration,
		notifications,
		reconcilerRuns,
		reconcilerDuplicates,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RegisterDBStats exports connection pool statistics for db.
func RegisterDBStats(db *sql.DB, name string) error {
	return Registry.Register(collectors.NewDBStatsCollector(db, name))
}

// InstrumentHandler records request counts and latency labelled by the chi
// route pattern.
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

		route := routePattern(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordGrant counts a grant by result: granted, noop, miss or error.
func RecordGrant(result string) {
	badgeGrants.WithLabelValues(result).Inc()
}

// RecordRevoke counts a revoke by result.
func RecordRevoke(result string) {
	badgeRevokes.WithLabelValues(result).Inc()
}

// RecordXP adds credited points.
func RecordXP(xpType string, points int64) {
	if points <= 0 {
		return
	}
	xpAwarded.WithLabelValues(xpType).Add(float64(points))
}

// RecordReferral counts a referral outcome.
func RecordReferral(outcome string) {
	referralOutcomes.WithLabelValues(outcome).Inc()
}

// RecordImageLookup counts where a badge image came from: cache, negative,
// probe or none.
func RecordImageLookup(source string) {
	imageLookups.WithLabelValues(source).Inc()
}

// RecordImageProbe observes a single blob probe.
func RecordImageProbe(result string, d time.Duration) {
	imageProbeDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordNotification counts an outcall by result.
func RecordNotification(callable, result string) {
	notifications.WithLabelValues(callable, result).Inc()
}

// RecordReconcile records one reconciler run.
func RecordReconcile(success bool, removed int) {
	reconcilerRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
	reconcilerDuplicates.Add(float64(removed))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
