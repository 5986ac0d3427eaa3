// Package metrics provides Prometheus metrics for cmxbatch runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "cmxbatch"
)

// Item metrics track per-document operations dispatched by the coordinator.
var (
	// ItemsTotal is the total number of processed items by task and outcome.
	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_total",
		Help:      "Total number of processed items",
	}, []string{"task", "outcome"})

	// ItemRetriesTotal is the total number of retried attempts by task.
	ItemRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "item_retries_total",
		Help:      "Total number of item retry attempts",
	}, []string{"task"})

	// ItemDuration is a histogram of item processing duration in seconds, retries included.
	ItemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "item_duration_seconds",
		Help:      "Duration of item processing in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
	}, []string{"task"})

	// ItemsInFlight is the number of items currently being processed.
	ItemsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "items_in_flight",
		Help:      "Number of items currently being processed",
	}, []string{"task"})
)

// API metrics track calls to the document store.
var (
	// APIRequestsTotal is the total number of document-store requests by operation and status class.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total number of document-store API requests",
	}, []string{"operation", "status"})

	// APIRequestDuration is a histogram of document-store request duration in seconds.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Duration of document-store API requests in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"operation"})

	// SearchPagesTotal is the total number of search pages fetched.
	SearchPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_pages_total",
		Help:      "Total number of search pages fetched",
	})

	// TokenRefreshTotal is the total number of token exchanges by result.
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of access token exchanges",
	}, []string{"result"})
)

// Run metrics describe the current run.
var (
	// RunInfo carries the task name and run id of the current run.
	RunInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_info",
		Help:      "Task and run id of the current run",
	}, []string{"task", "run_id", "version"})

	// RunStartTime is the unix timestamp when the run started.
	RunStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_start_time_seconds",
		Help:      "Unix timestamp when the run started",
	})
)
