// Package metrics declares the Prometheus collectors exported on the ops
// listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamLatency records the duration of every outbound call to the
	// operator APIs.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cpfleet_upstream_request_duration_seconds",
		Help:    "Latency of outbound requests to the travel and realtime APIs",
		Buckets: prometheus.DefBuckets,
	}, []string{"url", "method", "status"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpfleet_upstream_errors_total",
		Help: "Outbound calls that failed or returned a non-success status",
	}, []string{"endpoint"})
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpfleet_http_requests_total",
		Help: "Inbound requests by route and status code",
	}, []string{"route", "code"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpfleet_rate_limited_total",
		Help: "Inbound requests rejected by the rate limiter",
	})
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpfleet_cache_lookups_total",
		Help: "Static data cache lookups (result = hit|miss|error)",
	}, []string{"key", "result"})
)

// FleetTrains is the per-category count from the last computed stats.
var FleetTrains = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "cpfleet_trains",
	Help: "Trains per category in the most recent stats response",
}, []string{"category"})
