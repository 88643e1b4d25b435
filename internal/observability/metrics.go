package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Cache lookups by data kind and result (hit, miss). Hit rate drops mean TTL or key churn.
	CacheLookupsTotal *prometheus.CounterVec

	// Cache writes that failed. The reply still goes out; watch for disk trouble.
	CacheWriteErrorsTotal prometheus.Counter

	// OpenWeatherMap calls by endpoint and status label.
	WeatherAPICallsTotal *prometheus.CounterVec

	// OpenWeatherMap latency per attempt.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API calls.
	WeatherAPIRetriesTotal prometheus.Counter

	// Inbound chat events by type (text, location, menu, callback, command).
	DialogEventsTotal *prometheus.CounterVec

	// Errors shown to users, by taxonomy kind.
	DialogErrorsTotal *prometheus.CounterVec

	// Per-user notification outcomes (delivered, weather_error, send_error, skipped).
	NotificationsTotal *prometheus.CounterVec

	// Duration of one full notification cycle.
	NotificationCycleDuration prometheus.Histogram
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Weather cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)
	CacheWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWriteErrorsTotal",
			Help: "Weather cache writes that failed",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per attempt)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	DialogEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogEventsTotal",
			Help: "Inbound chat events by type",
		},
		[]string{"event"},
	)
	DialogErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogErrorsTotal",
			Help: "Errors rendered to users by kind",
		},
		[]string{"kind"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notificationsTotal",
			Help: "Per-user notification outcomes",
		},
		[]string{"result"},
	)
	NotificationCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notificationCycleDurationSeconds",
			Help:    "Duration of a notification cycle in seconds",
			Buckets: []float64{.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	registry.MustRegister(
		CacheLookupsTotal, CacheWriteErrorsTotal,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		DialogEventsTotal, DialogErrorsTotal,
		NotificationsTotal, NotificationCycleDuration,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
