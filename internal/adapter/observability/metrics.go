// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring and exposes a
// Prometheus registry shared by the HTTP server and both worker binaries.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	dbPoolUtilizationRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_utilization_ratio",
			Help: "Connection pool utilization ratio (acquired/max)",
		},
		[]string{"service"},
	)
	dbPoolExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_pool_exhausted_total",
			Help: "Total acquire rejections due to backpressure threshold",
		},
		[]string{"service"},
	)

	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"dep"},
	)
	circuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"dep", "to"},
	)

	cdcLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cdc_lag_seconds",
			Help: "Seconds between now and the max source timestamp consumed",
		},
		[]string{"topic"},
	)
	cdcOffsetCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_offset_commits_total",
			Help: "Total CDC consumer offset commits",
		},
		[]string{"topic"},
	)
	cdcDeadLetterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_dead_letter_total",
			Help: "Total records sent to the dead-letter sink",
		},
		[]string{"topic"},
	)

	feedCacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_events_total",
			Help: "Feed cache events by outcome",
		},
		[]string{"event"},
	)

	feedRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_request_duration_seconds",
			Help:    "get_feed request duration by source",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"source"},
	)
	feedCandidateCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_candidate_count",
			Help:    "Number of candidates returned per source per request",
			Buckets: []float64{0, 10, 50, 100, 250, 500, 1000},
		},
		[]string{"source"},
	)

	jobRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_refresh_duration_seconds",
			Help:    "Candidate refresh job duration by table",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"table"},
	)
	jobRefreshFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_refresh_failures_total",
			Help: "Total candidate refresh job failures by table",
		},
		[]string{"table"},
	)

	rankingNaNScoresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_nan_scores_total",
			Help: "Total NaN/incomparable scores encountered during ranking merge",
		},
	)
	rankingSourceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_source_errors_total",
			Help: "Total candidate source errors tolerated during ranking",
		},
		[]string{"source"},
	)

	rankingScoreDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ranking_score_drift",
			Help: "Absolute drift of recent combined_score average from its baseline, by candidate table",
		},
		[]string{"table"},
	)
)

// InitMetrics registers all Prometheus series with the default registry.
// Called once per binary at startup (cmd/server, cmd/cdcworker,
// cmd/eventsworker), matching the teacher's single-registration idiom.
func InitMetrics() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		dbPoolUtilizationRatio,
		dbPoolExhaustedTotal,
		circuitBreakerState,
		circuitBreakerTransitionsTotal,
		cdcLagSeconds,
		cdcOffsetCommitsTotal,
		cdcDeadLetterTotal,
		feedCacheEventsTotal,
		feedRequestDuration,
		feedCandidateCount,
		jobRefreshDuration,
		jobRefreshFailuresTotal,
		rankingNaNScoresTotal,
		rankingSourceErrorsTotal,
		rankingScoreDrift,
	)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		httpRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		httpRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// Metrics is a constructor-injected handle onto the process-scoped
// Prometheus registry. Components take a *Metrics rather than reaching for
// package-level vars directly, per the no-lazy-singleton design guidance;
// InitMetrics still performs the one-time registration underneath.
type Metrics struct{}

// NewMetrics returns a Metrics handle. Safe to construct many times; the
// underlying series are package-level and registered once by InitMetrics.
func NewMetrics() *Metrics { return &Metrics{} }

// SetPoolUtilization records the current utilization ratio for a pool.
func (*Metrics) SetPoolUtilization(service string, ratio float64) {
	dbPoolUtilizationRatio.WithLabelValues(service).Set(ratio)
}

// IncPoolExhausted counts a backpressure rejection.
func (*Metrics) IncPoolExhausted(service string) {
	dbPoolExhaustedTotal.WithLabelValues(service).Inc()
}

// SetCircuitState records the current breaker state as a gauge value.
func (*Metrics) SetCircuitState(dep string, state int) {
	circuitBreakerState.WithLabelValues(dep).Set(float64(state))
}

// IncCircuitTransition counts a breaker state transition.
func (*Metrics) IncCircuitTransition(dep, to string) {
	circuitBreakerTransitionsTotal.WithLabelValues(dep, to).Inc()
}

// SetCDCLag records CDC consumer lag for a topic.
func (*Metrics) SetCDCLag(topic string, seconds float64) {
	cdcLagSeconds.WithLabelValues(topic).Set(seconds)
}

// IncCDCOffsetCommits counts a committed batch for a topic.
func (*Metrics) IncCDCOffsetCommits(topic string) {
	cdcOffsetCommitsTotal.WithLabelValues(topic).Inc()
}

// IncCDCDeadLetter counts a record sent to the dead-letter sink for a topic.
func (*Metrics) IncCDCDeadLetter(topic string) {
	cdcDeadLetterTotal.WithLabelValues(topic).Inc()
}

// IncCacheEvent counts a feed cache event (hit, miss, write_ok, write_err,
// invalidate).
func (*Metrics) IncCacheEvent(event string) {
	feedCacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveFeedRequest records the duration of a get_feed call by source.
func (*Metrics) ObserveFeedRequest(source string, seconds float64) {
	feedRequestDuration.WithLabelValues(source).Observe(seconds)
}

// ObserveCandidateCount records how many candidates a source contributed.
func (*Metrics) ObserveCandidateCount(source string, n int) {
	feedCandidateCount.WithLabelValues(source).Observe(float64(n))
}

// ObserveJobRefresh records a candidate refresh job's duration by table.
func (*Metrics) ObserveJobRefresh(table string, seconds float64) {
	jobRefreshDuration.WithLabelValues(table).Observe(seconds)
}

// IncJobRefreshFailure counts a failed candidate refresh run by table.
func (*Metrics) IncJobRefreshFailure(table string) {
	jobRefreshFailuresTotal.WithLabelValues(table).Inc()
}

// IncNaNScore counts a NaN/incomparable score encountered during merge.
func (*Metrics) IncNaNScore() {
	rankingNaNScoresTotal.Inc()
}

// IncSourceError counts a tolerated candidate source error.
func (*Metrics) IncSourceError(source string) {
	rankingSourceErrorsTotal.WithLabelValues(source).Inc()
}

// SetScoreDrift records the current combined_score drift for a candidate
// table.
func (*Metrics) SetScoreDrift(table string, drift float64) {
	rankingScoreDrift.WithLabelValues(table).Set(drift)
}
