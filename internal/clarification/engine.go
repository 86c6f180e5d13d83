// Package clarification resolves ambiguous product searches by asking
// targeted follow-up questions, re-classifying the answers with the
// conversation context injected, and falling back to assumptions after
// three rounds.
package clarification

import (
	"context"
	"fmt"

	"shopbot-core/internal/classifier"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/metrics"
	"shopbot-core/internal/models"
)

// Question types, used as the handoff detector's clarification_type.
const (
	TypeBudget   = "budget"
	TypeCategory = "category"
	TypeIntent   = "intent"
)

type Engine struct {
	classifier  classifier.Adapter
	maxAttempts int
	logger      logger.Logger
}

func NewEngine(adapter classifier.Adapter, maxAttempts int, log logger.Logger) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = models.MaxClarificationAttempts
	}
	return &Engine{
		classifier:  adapter,
		maxAttempts: maxAttempts,
		logger: log.WithFields(map[string]interface{}{
			"component": "clarification",
		}),
	}
}

// NeedsClarification reports whether the classified turn is too
// ambiguous to act on given what the conversation already knows.
func (e *Engine) NeedsClarification(result *models.ClassificationResult, cc *models.ConversationContext) bool {
	return result.NeedsClarification(cc)
}

// NextQuestion picks the question for the current round and records it
// in the state. Missing entities take priority over low confidence: a
// concrete question beats "what do you mean".
func (e *Engine) NextQuestion(result *models.ClassificationResult, cc *models.ConversationContext, state *models.ClarificationState) string {
	questionType := TypeIntent
	missing := result.MissingRequiredEntities(cc)
	if len(missing) > 0 {
		questionType = missing[0]
	}

	question := questionFor(questionType, cc)
	state.RecordQuestion(question, questionType)
	metrics.ClarificationsAsked.WithLabelValues(questionType).Inc()

	e.logger.Info("clarification question asked", map[string]interface{}{
		"sessionId": cc.SessionID,
		"type":      questionType,
		"attempt":   state.AttemptCount,
	})
	return question
}

// ProcessResponse re-classifies the shopper's answer with the last
// question and accumulated entities injected into the classifier
// context, so a terse reply like "under 50" resolves to a budget rather
// than a fresh intent. Classifier errors here PROPAGATE: guessing a
// wrong intent silently is worse than a visible failure.
func (e *Engine) ProcessResponse(ctx context.Context, message string, cc *models.ConversationContext, state *models.ClarificationState) (*models.ClassificationResult, error) {
	if cc.Metadata == nil {
		cc.Metadata = make(map[string]interface{})
	}
	cc.Metadata["pendingQuestion"] = state.LastQuestion()
	defer delete(cc.Metadata, "pendingQuestion")

	result, err := e.classifier.Classify(ctx, message, cc)
	if err != nil {
		return nil, fmt.Errorf("re-classify clarification answer: %w", err)
	}

	// A clarification answer stays a product search unless the shopper
	// clearly changed topic with high confidence.
	if result.Intent != models.IntentProductSearch && result.Confidence < models.ClarificationThreshold {
		result.Intent = models.IntentProductSearch
	}
	return result, nil
}

// ShouldFallback reports whether the engine must stop asking and answer
// with assumptions. Triggers exactly at the configured attempt cap.
func (e *Engine) ShouldFallback(state *models.ClarificationState) bool {
	return state.AttemptCount >= e.maxAttempts
}

// AssumptionMessage names the assumed defaults: no budget ceiling, any
// size, and the known category or a generic noun.
func (e *Engine) AssumptionMessage(cc *models.ConversationContext) string {
	noun := "products"
	if category := cc.Entity(models.EntityCategory); category != "" {
		noun = category
	}
	return fmt.Sprintf("Let me show you some popular %s across all price ranges. Tell me if you'd like to narrow things down.", noun)
}

func questionFor(questionType string, cc *models.ConversationContext) string {
	switch questionType {
	case TypeBudget:
		noun := "something"
		if category := cc.Entity(models.EntityCategory); category != "" {
			noun = category
		}
		return fmt.Sprintf("What's your budget for %s?", noun)
	case TypeCategory:
		return "What kind of product are you looking for?"
	default:
		return "Could you tell me a bit more about what you're looking for?"
	}
}
