// Package pipeline composes the ordered, short-circuiting stage chain
// that turns one inbound utterance into one normalized response. Stage
// order is load-bearing: the budget gate runs before classification so
// a paused merchant never pays for a classifier call, and clarification
// is evaluated before handoff so shoppers who need one more question
// are not escalated.
package pipeline

import (
	"context"
	"fmt"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/metrics"
	"shopbot-core/internal/models"
)

// Turn is the per-invocation state threaded through the stages. It is
// owned by the current pipeline run; the context store is the cross-turn
// owner of everything persistent.
type Turn struct {
	Merchant  *models.Merchant
	Context   *models.ConversationContext
	SessionID string
	Message   string
	CartKey   string

	// Set by the classification stage.
	Result *models.ClassificationResult

	// Clarification round state, loaded before the run and persisted by
	// the clarification gate.
	Clarification *models.ClarificationState

	// PendingQuestion is the clarification question the gate decided to
	// ask this turn; the handoff gate delivers it unless escalation wins.
	PendingQuestion   string
	ClarificationType string

	// AssumptionPrefix is prepended to the dispatched response after a
	// clarification fallback.
	AssumptionPrefix string

	// Handoff carries the detector result for context persistence.
	Handoff *models.HandoffResult

	// ShortCircuitStage names the stage that ended the turn, for audit.
	ShortCircuitStage string
}

// ConversationID keys the handoff counters. One session is one
// conversation.
func (t *Turn) ConversationID() string {
	return t.SessionID
}

// Stage is one pipeline step.
type Stage interface {
	Name() string
	Run(ctx context.Context, turn *Turn) (Outcome, error)
}

// Runner executes stages in order until one responds.
type Runner struct {
	stages []Stage
	logger logger.Logger
}

func NewRunner(log logger.Logger, stages ...Stage) *Runner {
	return &Runner{
		stages: stages,
		logger: log.WithFields(map[string]interface{}{
			"component": "pipeline",
		}),
	}
}

// Run drives the turn through the chain. Stage errors abort the run and
// surface to the caller; stages that can degrade gracefully do so
// internally and respond instead of erroring.
func (r *Runner) Run(ctx context.Context, turn *Turn) (*models.NormalizedResponse, error) {
	for _, stage := range r.stages {
		outcome, err := stage.Run(ctx, turn)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if resp, done := outcome.Final(); done {
			if turn.ShortCircuitStage == "" {
				turn.ShortCircuitStage = stage.Name()
			}
			metrics.StageShortCircuits.WithLabelValues(turn.ShortCircuitStage).Inc()
			r.logger.Debug("stage short-circuited", map[string]interface{}{
				"stage":     turn.ShortCircuitStage,
				"sessionId": turn.SessionID,
			})
			return resp, nil
		}
	}
	return nil, fmt.Errorf("pipeline exhausted without a response")
}
