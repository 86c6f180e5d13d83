// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_turns_processed_total",
			Help: "Total number of conversation turns processed",
		},
		[]string{"channel", "intent"},
	)

	TurnsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_turns_failed_total",
			Help: "Total number of turns that hit the generic-failure path",
		},
		[]string{"channel", "error_code"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bot_turn_duration_seconds",
			Help: "Duration of turn processing in seconds",
		},
		[]string{"channel"},
	)

	StageShortCircuits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stage_short_circuits_total",
			Help: "Pipeline short-circuits by stage",
		},
		[]string{"stage"},
	)

	HandoffsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_handoffs_triggered_total",
			Help: "Human handoffs triggered by reason",
		},
		[]string{"reason"},
	)

	ClarificationsAsked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_clarifications_asked_total",
			Help: "Clarification questions asked by type",
		},
		[]string{"type"},
	)

	ClassifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bot_classifier_duration_seconds",
			Help: "Latency of external classifier calls",
		},
		[]string{"status"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_notifications_failed_total",
			Help: "Operator escalation notifications that failed to send",
		},
		[]string{"channel"},
	)

	AuditIndexFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_audit_index_failures_total",
			Help: "Turn audit records that failed to index",
		},
	)
)
