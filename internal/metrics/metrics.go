package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisions counts usage gate outcomes by feature and outcome.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "gate_decisions_total",
		Help:      "Usage gate decisions by feature and outcome (allowed or denial reason).",
	}, []string{"feature", "outcome"})

	// Verifications counts payment verification attempts by result.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "verifications_total",
		Help:      "Payment callback verifications by result.",
	}, []string{"result"})

	// OrdersInitiated counts checkout initiations by plan and outcome.
	OrdersInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "orders_initiated_total",
		Help:      "Checkout initiations by plan and outcome.",
	}, []string{"plan", "outcome"})

	// GatewayRequestDuration tracks payment gateway call latency.
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "gateway_request_duration_seconds",
		Help:      "Payment gateway request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "outcome"})

	// SweepDeactivations counts subscriptions deactivated by the expiry sweep.
	SweepDeactivations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "sweep_deactivations_total",
		Help:      "Lapsed Pro subscriptions deactivated by the expiry sweep.",
	})

	// SweepRuns counts sweep executions by outcome.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "sweep_runs_total",
		Help:      "Expiry sweep runs by outcome.",
	}, []string{"outcome"})

	// EventPublishFailures counts entitlement events that could not be published.
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "event_publish_failures_total",
		Help:      "Entitlement events dropped because publishing failed.",
	}, []string{"type"})

	// HTTPRequestDuration tracks API latency by route pattern and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nutriapp",
		Subsystem: "entitlement",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)
