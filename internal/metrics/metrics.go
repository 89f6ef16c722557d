// Package metrics declares the Prometheus collectors for the event relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook delivery metrics
var (
	// DeliveriesTotal tracks inbound webhook deliveries by message type and outcome.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Inbound EventSub deliveries by message type and outcome",
		},
		[]string{"message_type", "outcome"},
	)

	// DeliveriesRejected tracks deliveries that failed verification by reason.
	DeliveriesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_rejected_total",
			Help: "Deliveries rejected before dispatch by reason",
		},
		[]string{"reason"},
	)

	// DeliveriesDuplicate tracks redeliveries suppressed by the message-id cache.
	DeliveriesDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_duplicate_total",
			Help: "Deliveries suppressed as duplicates of an already-seen message id",
		},
	)
)

// Subscription reconciliation metrics
var (
	// ReconcileRuns tracks reconciliation passes by result (changed/clean/error).
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Reconciliation passes by result",
		},
		[]string{"result"},
	)

	// ReconcileActions tracks corrective subscription creates and deletes.
	ReconcileActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_actions_total",
			Help: "Corrective subscription actions by kind (create/delete)",
		},
		[]string{"action"},
	)
)

// Twitch API metrics
var (
	// TokenRefreshes tracks app access token refreshes by outcome.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitch_token_refreshes_total",
			Help: "App access token refreshes by outcome",
		},
		[]string{"outcome"},
	)

	// HelixRequests tracks outbound Helix API calls by operation and status class.
	HelixRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitch_helix_requests_total",
			Help: "Outbound Helix API requests by operation and status class",
		},
		[]string{"operation", "status"},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks Redis commands by operation and status.
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis command latency in seconds.
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks failed Redis connection attempts.
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks breaker state transitions.
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks the current breaker state (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Notification metrics
var (
	// NotificationsSent tracks Telegram notifications by event kind and outcome.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Telegram notifications by event kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)
