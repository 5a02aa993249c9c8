package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision engine metrics for production monitoring
var (
	// Forecast metrics
	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_forecasts_total",
			Help: "Total number of forecasts requested",
		},
		[]string{"status"}, // ok, insufficient_data, invalid, error
	)

	ForecastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablewise_insights_forecast_duration_seconds",
			Help:    "Forecast computation time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	// Churn metrics
	ChurnAssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_churn_assessments_total",
			Help: "Total number of churn assessments by resulting risk level",
		},
		[]string{"risk_level"},
	)

	// Inventory metrics
	InventoryRecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_inventory_recommendations_total",
			Help: "Total number of inventory recommendations by priority",
		},
		[]string{"priority"},
	)

	// Automation metrics
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_actions_total",
			Help: "Total number of automation action attempts",
		},
		[]string{"action", "status"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablewise_insights_action_duration_seconds",
			Help:    "Action handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"action"},
	)

	PendingApprovals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablewise_insights_pending_approvals",
			Help: "Number of approval requests awaiting a decision",
		},
	)

	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_sink_errors_total",
			Help: "Total number of failed writes to audit sinks",
		},
		[]string{"sink"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablewise_insights_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablewise_insights_websocket_clients",
			Help: "Number of connected action stream clients",
		},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_rate_limited_total",
			Help: "Total number of requests or actions rejected by a rate limiter",
		},
		[]string{"scope"}, // http, auto_execute
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablewise_insights_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"cache", "result"}, // hit, miss
	)
)
