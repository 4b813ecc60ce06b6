package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var profileLabel atomic.Value

func init() {
	profileLabel.Store("v4")
}

func SetProfile(s string) {
	if s == "" {
		s = "v4"
	}
	profileLabel.Store(s)
}

func getProfile() string {
	if v := profileLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "v4"
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "profile"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "profile"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "profile"},
	)

	fetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carto_fetch_total",
			Help: "CARTO SQL fetches by outcome class.",
		},
		[]string{"outcome", "layer", "profile"},
	)

	supersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "controller_superseded_responses_total",
			Help: "Responses dropped because a newer selection was issued.",
		},
	)

	overlayInstalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_installs_total",
			Help: "Overlay installs by trigger.",
		},
		[]string{"trigger", "profile"},
	)

	viewSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "view_sessions_active",
			Help: "Open websocket view sessions.",
		},
	)

	hotKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_hot_keys",
			Help: "Queries currently tracked for cache warming.",
		},
		[]string{"tier"},
	)

	warmedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_warmed_queries_total",
			Help: "Queries re-fetched after an invalidation, by result.",
		},
		[]string{"result"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by outcome and tier.",
		},
		[]string{"outcome", "tier", "profile"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Dataset refresh events by result.",
		},
		[]string{"table", "result"},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)
)

// Collectors lets a dedicated registry re-export the service metrics.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		fetchResults, supersededTotal, overlayInstalls, viewSessions,
		cacheResults, cacheOpSeconds, invalidationsTotal, kafkaConsumerErrors,
		hotKeys, warmedTotal,
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	p := getProfile()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, p).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, p).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, getProfile()).Observe(durationSeconds)
}

func IncFetch(outcome, layer string) {
	fetchResults.WithLabelValues(outcome, layer, getProfile()).Inc()
}

func IncSuperseded() { supersededTotal.Inc() }

func IncOverlayInstall(trigger string) {
	overlayInstalls.WithLabelValues(trigger, getProfile()).Inc()
}

func ViewSessionOpened() { viewSessions.Inc() }
func ViewSessionClosed() { viewSessions.Dec() }

func IncCacheHit(tier string) {
	cacheResults.WithLabelValues("hit", tier, getProfile()).Inc()
}

func IncCacheMiss(tier string) {
	cacheResults.WithLabelValues("miss", tier, getProfile()).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpSeconds.WithLabelValues(op, res).Observe(durationSeconds)
}

func ObserveInvalidation(table string, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	invalidationsTotal.WithLabelValues(table, res).Inc()
}

func SetHotKeysGauge(tier string, n int) {
	hotKeys.WithLabelValues(tier).Set(float64(n))
}

func IncWarmed(err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	warmedTotal.WithLabelValues(res).Inc()
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
