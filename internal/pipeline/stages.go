package pipeline

import (
	"context"

	"shopbot-core/internal/classifier"
	"shopbot-core/internal/clarification"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/faq"
	"shopbot-core/internal/handlers"
	"shopbot-core/internal/handoff"
	"shopbot-core/internal/models"
	"shopbot-core/internal/templates"
)

// ==========================================================================
// 1. FAQ pre-match
// ==========================================================================

// FAQSource lists a merchant's FAQs in configured order.
type FAQSource interface {
	ListFAQs(ctx context.Context, merchantID string) ([]models.FAQ, error)
}

// FAQStage answers directly from the merchant's FAQ list, skipping the
// classifier entirely on a confident match. FAQ lookup failures pass
// through: losing the shortcut must not lose the turn.
type FAQStage struct {
	source  FAQSource
	matcher *faq.Matcher
	logger  logger.Logger
}

func NewFAQStage(source FAQSource, matcher *faq.Matcher, log logger.Logger) *FAQStage {
	return &FAQStage{source: source, matcher: matcher, logger: log}
}

func (s *FAQStage) Name() string { return "faq" }

func (s *FAQStage) Run(ctx context.Context, turn *Turn) (Outcome, error) {
	faqs, err := s.source.ListFAQs(ctx, turn.Merchant.ID)
	if err != nil {
		s.logger.WithError(err).Warn("faq lookup failed, continuing", map[string]interface{}{
			"merchantId": turn.Merchant.ID,
		})
		return Continue(), nil
	}

	match := s.matcher.BestMatch(turn.Message, faqs)
	if match == nil {
		return Continue(), nil
	}

	resp := &models.NormalizedResponse{
		Message:    match.FAQ.Answer,
		Intent:     models.IntentFAQ,
		Confidence: match.Score,
	}
	resp.WithMeta("faqId", match.FAQ.ID)
	return Respond(resp), nil
}

// ==========================================================================
// 2. Budget / pause gate
// ==========================================================================

// BudgetStage returns the fixed unavailable message for paused or
// budget-exhausted merchants, before any money is spent on the
// classifier. Firing writes the pause flag through to redis so later
// turns short-circuit cheaply.
type BudgetStage struct {
	cache     *PauseCache
	templates *templates.Registry
	logger    logger.Logger
}

func NewBudgetStage(cache *PauseCache, reg *templates.Registry, log logger.Logger) *BudgetStage {
	return &BudgetStage{cache: cache, templates: reg, logger: log}
}

func (s *BudgetStage) Name() string { return "budget" }

func (s *BudgetStage) Run(ctx context.Context, turn *Turn) (Outcome, error) {
	paused := turn.Merchant.Unavailable()
	if !paused && s.cache != nil {
		paused = s.cache.IsPaused(ctx, turn.Merchant.ID)
	}
	if !paused {
		return Continue(), nil
	}

	if s.cache != nil {
		s.cache.SetPaused(ctx, turn.Merchant.ID)
	}

	resp := &models.NormalizedResponse{
		Message: s.templates.Render(turn.Merchant.Personality, templates.KindPaused, templates.Args{
			MerchantName: turn.Merchant.Name,
		}),
	}
	resp.WithMeta("is_paused", true)
	return Respond(resp), nil
}

// ==========================================================================
// 3. Classification
// ==========================================================================

// ClassifyStage labels the utterance. It never short-circuits on its
// own: the result feeds the clarification and handoff gates. An active
// clarification round re-classifies through the engine with the last
// question injected, and errors on that path propagate; a plain
// classification failure degrades to the generic response instead.
type ClassifyStage struct {
	adapter   classifier.Adapter
	engine    *clarification.Engine
	templates *templates.Registry
	logger    logger.Logger
}

func NewClassifyStage(adapter classifier.Adapter, engine *clarification.Engine, reg *templates.Registry, log logger.Logger) *ClassifyStage {
	return &ClassifyStage{adapter: adapter, engine: engine, templates: reg, logger: log}
}

func (s *ClassifyStage) Name() string { return "classify" }

func (s *ClassifyStage) Run(ctx context.Context, turn *Turn) (Outcome, error) {
	if turn.Clarification != nil && turn.Clarification.Active {
		result, err := s.engine.ProcessResponse(ctx, turn.Message, turn.Context, turn.Clarification)
		if err != nil {
			return Outcome{}, err
		}
		turn.Result = result
		return Continue(), nil
	}

	result, err := s.adapter.Classify(ctx, turn.Message, turn.Context)
	if err != nil {
		s.logger.WithError(err).Error("classification failed, degrading to generic response", map[string]interface{}{
			"sessionId": turn.SessionID,
		})
		resp := &models.NormalizedResponse{
			Message: s.templates.Render(turn.Merchant.Personality, templates.KindGenericError, templates.Args{
				MerchantName: turn.Merchant.Name,
			}),
		}
		resp.WithMeta("classifier_error", true)
		return Respond(resp), nil
	}

	turn.Result = result
	return Continue(), nil
}

// ==========================================================================
// 4. Clarification gate
// ==========================================================================

// ClarificationStore persists clarification state across turns. Write
// failures are the store's concern; the gate never blocks on them.
type ClarificationStore interface {
	SaveClarification(ctx context.Context, sessionID string, state *models.ClarificationState)
	ClearClarification(ctx context.Context, sessionID string)
}

// ClarifyStage decides whether the turn needs another question. It does
// not deliver the question itself: the decision is parked on the turn
// so the handoff gate can still escalate a shopper stuck in a loop.
// After the attempt cap the gate clears state and lets dispatch proceed
// on assumptions.
type ClarifyStage struct {
	engine *clarification.Engine
	store  ClarificationStore
	logger logger.Logger
}

func NewClarifyStage(engine *clarification.Engine, store ClarificationStore, log logger.Logger) *ClarifyStage {
	return &ClarifyStage{engine: engine, store: store, logger: log}
}

func (s *ClarifyStage) Name() string { return "clarification" }

func (s *ClarifyStage) Run(ctx context.Context, turn *Turn) (Outcome, error) {
	state := turn.Clarification
	if state == nil {
		state = &models.ClarificationState{}
		turn.Clarification = state
	}

	if !s.engine.NeedsClarification(turn.Result, turn.Context) {
		if state.Active {
			state.Active = false
			s.store.ClearClarification(ctx, turn.SessionID)
		}
		return Continue(), nil
	}

	if s.engine.ShouldFallback(state) {
		turn.AssumptionPrefix = s.engine.AssumptionMessage(turn.Context)
		state.Active = false
		s.store.ClearClarification(ctx, turn.SessionID)
		return Continue(), nil
	}

	question := s.engine.NextQuestion(turn.Result, turn.Context, state)
	turn.PendingQuestion = question
	turn.ClarificationType = state.PendingType
	s.store.SaveClarification(ctx, turn.SessionID, state)
	return Continue(), nil
}

// ==========================================================================
// 5. Handoff gate
// ==========================================================================

// EscalationNotifier tells the merchant's operator a shopper needs
// them. Fire-and-forget.
type EscalationNotifier interface {
	NotifyHandoff(ctx context.Context, merchant *models.Merchant, sessionID string, result models.HandoffResult)
}

// HandoffStage evaluates the escalation triggers, feeding in the
// clarification round the previous gate decided on. If escalation wins
// it acknowledges and marks the conversation operator-owned; otherwise
// a pending clarification question goes out here, preserving the
// clarify-before-handoff ordering.
type HandoffStage struct {
	detector  *handoff.Detector
	templates *templates.Registry
	notifier  EscalationNotifier
	logger    logger.Logger
}

func NewHandoffStage(detector *handoff.Detector, reg *templates.Registry, notifier EscalationNotifier, log logger.Logger) *HandoffStage {
	return &HandoffStage{detector: detector, templates: reg, notifier: notifier, logger: log}
}

func (s *HandoffStage) Name() string { return "handoff" }

func (s *HandoffStage) Run(ctx context.Context, turn *Turn) (Outcome, error) {
	var confidence *float64
	if turn.Result != nil {
		confidence = &turn.Result.Confidence
	}

	result := s.detector.Detect(ctx, turn.Message, turn.ConversationID(), confidence, turn.ClarificationType)
	turn.Handoff = &result

	if result.ShouldHandoff {
		s.detector.MarkHandoff(ctx, turn.ConversationID())
		if s.notifier != nil {
			s.notifier.NotifyHandoff(ctx, turn.Merchant, turn.SessionID, result)
		}

		resp := &models.NormalizedResponse{
			Message: s.templates.Render(turn.Merchant.Personality, templates.KindHandoffAck, templates.Args{
				MerchantName: turn.Merchant.Name,
			}),
		}
		resp.WithMeta("handoff", true)
		resp.WithMeta("handoff_reason", string(result.Reason))
		return Respond(resp), nil
	}

	if turn.PendingQuestion != "" {
		turn.ShortCircuitStage = "clarification"
		resp := &models.NormalizedResponse{
			Message:    turn.PendingQuestion,
			Intent:     models.IntentProductSearch,
			Confidence: turn.Result.Confidence,
		}
		resp.WithMeta("clarification", turn.ClarificationType)
		return Respond(resp), nil
	}

	return Continue(), nil
}

// ==========================================================================
// 6. Handler dispatch
// ==========================================================================

// DispatchStage selects the handler for the classified intent. Handler
// failures degrade to the generic response: the transport never sees an
// unhandled fault.
type DispatchStage struct {
	registry  *handlers.Registry
	templates *templates.Registry
	logger    logger.Logger
}

func NewDispatchStage(registry *handlers.Registry, reg *templates.Registry, log logger.Logger) *DispatchStage {
	return &DispatchStage{registry: registry, templates: reg, logger: log}
}

func (s *DispatchStage) Name() string { return "dispatch" }

func (s *DispatchStage) Run(ctx context.Context, turn *Turn) (Outcome, error) {
	handler, err := s.registry.Get(turn.Result.Intent)
	if err != nil {
		return Outcome{}, err
	}

	resp, err := handler.Handle(ctx, &handlers.Request{
		Merchant: turn.Merchant,
		Context:  turn.Context,
		Result:   turn.Result,
		CartKey:  turn.CartKey,
	})
	if err != nil {
		s.logger.WithError(err).Error("handler failed, degrading to generic response", map[string]interface{}{
			"intent":    turn.Result.Intent,
			"sessionId": turn.SessionID,
		})
		fallback := &models.NormalizedResponse{
			Message: s.templates.Render(turn.Merchant.Personality, templates.KindGenericError, templates.Args{
				MerchantName: turn.Merchant.Name,
			}),
			Intent: turn.Result.Intent,
		}
		fallback.WithMeta("handler_error", true)
		return Respond(fallback), nil
	}

	if turn.AssumptionPrefix != "" {
		resp.Message = turn.AssumptionPrefix + " " + resp.Message
		resp.WithMeta("assumed_defaults", true)
	}
	if resp.Confidence == 0 && turn.Result != nil {
		resp.Confidence = turn.Result.Confidence
	}
	return Respond(resp), nil
}
