package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook delivery metrics
var (
	// WebhookDeliveriesTotal tracks inbound webhook deliveries by message type and outcome
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Inbound webhook deliveries by message type and outcome",
		},
		[]string{"message_type", "outcome"},
	)

	// WebhookSignatureFailures tracks rejected deliveries with bad signatures
	WebhookSignatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Webhook deliveries rejected due to signature mismatch",
		},
	)

	// DispatcherDroppedEvents tracks notifications dropped by the dispatcher
	DispatcherDroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_dropped_events_total",
			Help: "Notifications dropped by the dispatcher, by reason (duplicate, unknown_entity, unknown_type)",
		},
		[]string{"reason"},
	)
)

// Subscription lifecycle metrics
var (
	// SubscriptionCreatesTotal tracks provider subscription create calls by outcome
	SubscriptionCreatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_subscription_creates_total",
			Help: "EventSub subscription create calls by outcome (created, already_exists, timeout, rejected)",
		},
		[]string{"outcome"},
	)

	// SubscriptionRetryAttempts tracks retry attempts on subscription creation
	SubscriptionRetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_subscription_retry_attempts_total",
			Help: "Retried EventSub subscription create attempts",
		},
	)

	// ActiveSubscriptions tracks the number of locally known active subscriptions
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsub_active_subscriptions",
			Help: "Locally known active EventSub subscriptions",
		},
	)

	// RevocationsTotal tracks upstream-initiated subscription revocations
	RevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_revocations_total",
			Help: "Subscription revocations delivered by the provider",
		},
	)
)

// Initialization and token metrics
var (
	// TokenAcquisitionsTotal tracks app access token acquisitions by outcome
	TokenAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitch_token_acquisitions_total",
			Help: "App access token acquisitions by outcome (success, auth_error, transient_error)",
		},
		[]string{"outcome"},
	)

	// CoordinatorState reports the initialization coordinator state
	// (0=uninitialized, 1=session_ready, 2=listener_ready, 3=failed)
	CoordinatorState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsub_coordinator_state",
			Help: "Initialization coordinator state (0=uninitialized, 1=session_ready, 2=listener_ready, 3=failed)",
		},
	)
)

// Job queue metrics
var (
	// JobsEnqueuedTotal tracks enqueued background jobs by kind
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Background jobs enqueued by kind",
		},
		[]string{"kind"},
	)

	// JobsCompletedTotal tracks finished background jobs by kind and status
	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Background jobs completed by kind and status",
		},
		[]string{"kind", "status"},
	)

	// JobDuration tracks background job execution time in seconds
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Background job execution duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)
)
