// Package metrics registers the Prometheus collectors exported by FastCab.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundMessages counts classified inbound messages by intent.
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcab_inbound_messages_total",
			Help: "Inbound WhatsApp messages by classified intent",
		},
		[]string{"intent"},
	)

	// Transitions counts conversation state changes.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcab_state_transitions_total",
			Help: "Conversation state transitions",
		},
		[]string{"from", "to"},
	)

	// Bookings counts bookings by ride class.
	Bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcab_bookings_total",
			Help: "Bookings created by ride class",
		},
		[]string{"ride_class"},
	)

	// Notifications counts trip notifications by stage and outcome (sent, failed, suppressed).
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcab_trip_notifications_total",
			Help: "Scheduled trip notifications by stage and result",
		},
		[]string{"stage", "result"},
	)

	// OutboundMessages counts proactive sends by transport and result.
	OutboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcab_outbound_messages_total",
			Help: "Proactive WhatsApp sends by transport and result",
		},
		[]string{"transport", "result"},
	)

	// HTTPRequests counts HTTP requests by route pattern and status text.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcab_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastcab_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RateLimited counts webhook requests rejected by the per-phone limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastcab_rate_limited_total",
			Help: "Inbound messages rejected by the rate limiter",
		},
	)

	// SessionsSwept counts sessions removed by the idle sweep.
	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastcab_sessions_swept_total",
			Help: "Idle sessions reset by the sweeper",
		},
	)
)
