// Package metrics holds the Prometheus collectors shared by the sync path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider API metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strava_api_requests_total",
			Help: "Total provider API calls by endpoint and final outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: "ok" or an adapter.Kind name
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strava_api_retries_total",
			Help: "Total provider API retries by reason",
		},
		[]string{"endpoint", "reason"}, // "auth_refresh", "rate_limited", "server_error", "network_error"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strava_api_request_duration_seconds",
			Help:    "Duration of single provider HTTP attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Token lifecycle
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_token_refreshes_total",
			Help: "Total token refresh attempts by result",
		},
		[]string{"result"}, // "ok", "failed", "reused"
	)

	// Activity cache
	ActivityCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_cache_lookups_total",
			Help: "Activity range cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "stale"
	)

	ActivitiesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activities_fetched_total",
			Help: "Total activity records parsed from provider pages",
		},
	)

	DashboardBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_build_duration_seconds",
			Help:    "Duration of dashboard builds including fetch and analytics",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// ObserveProviderAttempt records the latency of one HTTP attempt.
func ObserveProviderAttempt(endpoint string, d time.Duration) {
	ProviderRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}
