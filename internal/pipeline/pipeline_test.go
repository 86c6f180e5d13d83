package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot-core/internal/clarification"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/contextstore"
	"shopbot-core/internal/faq"
	"shopbot-core/internal/handlers"
	"shopbot-core/internal/handoff"
	"shopbot-core/internal/models"
	"shopbot-core/internal/templates"
)

// scriptedClassifier returns canned results in order and counts calls.
type scriptedClassifier struct {
	results []*models.ClassificationResult
	err     error
	calls   int
}

func (s *scriptedClassifier) Classify(_ context.Context, message string, _ *models.ConversationContext) (*models.ClassificationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	result := *s.results[idx]
	result.RawMessage = message
	return &result, nil
}

type staticFAQs struct {
	faqs []models.FAQ
	err  error
}

func (s *staticFAQs) ListFAQs(context.Context, string) ([]models.FAQ, error) {
	return s.faqs, s.err
}

type echoHandler struct{ intent string }

func (h *echoHandler) Intent() string { return h.intent }
func (h *echoHandler) Handle(context.Context, *handlers.Request) (*models.NormalizedResponse, error) {
	return &models.NormalizedResponse{Message: "handled:" + h.intent, Intent: h.intent}, nil
}

type failingHandler struct{ intent string }

func (h *failingHandler) Intent() string { return h.intent }
func (h *failingHandler) Handle(context.Context, *handlers.Request) (*models.NormalizedResponse, error) {
	return nil, errors.New("provider exploded")
}

type testHarness struct {
	runner     *Runner
	store      *contextstore.Store
	detector   *handoff.Detector
	classifier *scriptedClassifier
	merchant   *models.Merchant
}

func newHarness(t *testing.T, sc *scriptedClassifier, faqs []models.FAQ, handlerSet ...handlers.Handler) *testHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewNoOpLogger()
	store := contextstore.New(rdb, 24*time.Hour, 40, log)
	detector := handoff.NewDetector(rdb, handoff.Config{}, log)
	reg, err := templates.NewRegistry()
	require.NoError(t, err)
	engine := clarification.NewEngine(sc, 3, log)

	registry := handlers.NewRegistry()
	registry.Register(&echoHandler{intent: models.IntentUnknown})
	for _, h := range handlerSet {
		registry.Register(h)
	}

	runner := NewRunner(log,
		NewFAQStage(&staticFAQs{faqs: faqs}, faq.NewMatcher(0.7), log),
		NewBudgetStage(NewPauseCache(rdb, time.Minute, log), reg, log),
		NewClassifyStage(sc, engine, reg, log),
		NewClarifyStage(engine, store, log),
		NewHandoffStage(detector, reg, nil, log),
		NewDispatchStage(registry, reg, log),
	)

	return &testHarness{
		runner:     runner,
		store:      store,
		detector:   detector,
		classifier: sc,
		merchant: &models.Merchant{
			ID:          "merch-1",
			Name:        "Acme",
			Personality: models.PersonalityFriendly,
			Currency:    "USD",
			// Funded and running unless a test says otherwise.
			MonthlyBudgetCents:  100000,
			SpentThisMonthCents: 0,
			StoreConnected:      true,
		},
	}
}

func (h *testHarness) turn(message string) *Turn {
	ctx := context.Background()
	cc := h.store.Load(ctx, "sess-1", h.merchant.ID, models.ChannelWidget)
	return &Turn{
		Merchant:      h.merchant,
		Context:       cc,
		SessionID:     "sess-1",
		Message:       message,
		CartKey:       "widget:sess-1",
		Clarification: h.store.LoadClarification(ctx, "sess-1"),
	}
}

func highConfidence(intent string, entities map[string]interface{}) *models.ClassificationResult {
	return &models.ClassificationResult{Intent: intent, Confidence: 0.95, Entities: entities}
}

func TestPipeline_FAQShortCircuitSkipsClassifier(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{highConfidence(models.IntentGreeting, nil)}}
	h := newHarness(t, sc, []models.FAQ{{
		ID: "f1", Question: "What is your return policy?",
		Answer: "30 days, no questions asked.", Keywords: []string{"return", "refund"},
	}})

	resp, err := h.runner.Run(context.Background(), h.turn("what's your return and refund policy?"))

	assert.NoError(t, err)
	assert.Equal(t, "30 days, no questions asked.", resp.Message)
	assert.Equal(t, models.IntentFAQ, resp.Intent)
	assert.GreaterOrEqual(t, resp.Confidence, 0.7)
	assert.Zero(t, sc.calls, "classifier must not be invoked on an FAQ hit")
}

func TestPipeline_FAQLookupFailurePassesThrough(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{highConfidence(models.IntentGreeting, nil)}}
	h := newHarness(t, sc, nil, &echoHandler{intent: models.IntentGreeting})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	log := logger.NewNoOpLogger()
	reg, _ := templates.NewRegistry()
	engine := clarification.NewEngine(sc, 3, log)
	registry := handlers.NewRegistry()
	registry.Register(&echoHandler{intent: models.IntentGreeting})
	registry.Register(&echoHandler{intent: models.IntentUnknown})

	runner := NewRunner(log,
		NewFAQStage(&staticFAQs{err: errors.New("postgres down")}, faq.NewMatcher(0.7), log),
		NewBudgetStage(NewPauseCache(rdb, time.Minute, log), reg, log),
		NewClassifyStage(sc, engine, reg, log),
		NewClarifyStage(engine, h.store, log),
		NewHandoffStage(h.detector, reg, nil, log),
		NewDispatchStage(registry, reg, log),
	)

	resp, err := runner.Run(context.Background(), h.turn("hello"))

	assert.NoError(t, err)
	assert.Equal(t, "handled:greeting", resp.Message)
}

func TestPipeline_PausedMerchantSkipsClassifier(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{highConfidence(models.IntentGreeting, nil)}}
	h := newHarness(t, sc, nil)
	h.merchant.Paused = true

	resp, err := h.runner.Run(context.Background(), h.turn("show me shoes"))

	assert.NoError(t, err)
	assert.Equal(t, true, resp.Metadata["is_paused"])
	assert.Contains(t, resp.Message, "Acme")
	assert.Zero(t, sc.calls, "classifier must not be invoked for a paused merchant")
}

func TestPipeline_BudgetExhaustedPauses(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{highConfidence(models.IntentGreeting, nil)}}
	h := newHarness(t, sc, nil)
	h.merchant.SpentThisMonthCents = h.merchant.MonthlyBudgetCents

	resp, err := h.runner.Run(context.Background(), h.turn("hi"))

	assert.NoError(t, err)
	assert.Equal(t, true, resp.Metadata["is_paused"])
}

func TestPipeline_ClassifierFailureDegradesToGeneric(t *testing.T) {
	sc := &scriptedClassifier{err: errors.New("provider down")}
	h := newHarness(t, sc, nil)

	resp, err := h.runner.Run(context.Background(), h.turn("show me shoes"))

	assert.NoError(t, err)
	assert.Equal(t, true, resp.Metadata["classifier_error"])
	assert.NotEmpty(t, resp.Message)
}

func TestPipeline_AmbiguousSearchAsksClarification(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		{Intent: models.IntentProductSearch, Confidence: 0.9,
			Entities: map[string]interface{}{"category": "shoes"}},
	}}
	h := newHarness(t, sc, nil)

	resp, err := h.runner.Run(context.Background(), h.turn("show me shoes"))

	assert.NoError(t, err)
	assert.Contains(t, resp.Message, "budget")
	assert.Equal(t, "budget", resp.Metadata["clarification"])

	// The round was persisted for the next turn.
	state := h.store.LoadClarification(context.Background(), "sess-1")
	assert.True(t, state.Active)
	assert.Equal(t, 1, state.AttemptCount)
}

func TestPipeline_ClarificationAnswerResolvesAndDispatches(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		{Intent: models.IntentProductSearch, Confidence: 0.9,
			Entities: map[string]interface{}{"category": "shoes"}},
		{Intent: models.IntentProductSearch, Confidence: 0.92,
			Entities: map[string]interface{}{"category": "shoes", "budget": "100"}},
	}}
	h := newHarness(t, sc, nil, &echoHandler{intent: models.IntentProductSearch})
	ctx := context.Background()

	// Turn 1: question asked.
	resp, err := h.runner.Run(ctx, h.turn("show me shoes"))
	assert.NoError(t, err)
	assert.Contains(t, resp.Message, "budget")
	h.store.Update(ctx, "sess-1", h.merchant.ID, models.ChannelWidget, contextstore.TurnDelta{
		Intent:         models.IntentProductSearch,
		Entities:       map[string]interface{}{"category": "shoes"},
		ShopperMessage: "show me shoes",
		BotMessage:     resp.Message,
	})

	// Turn 2: terse answer resolves through re-classification.
	resp, err = h.runner.Run(ctx, h.turn("under 100"))
	assert.NoError(t, err)
	assert.Equal(t, "handled:product_search", resp.Message)

	state := h.store.LoadClarification(ctx, "sess-1")
	assert.False(t, state.Active)
}

func TestPipeline_ClarificationReClassifyErrorPropagates(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		{Intent: models.IntentProductSearch, Confidence: 0.9,
			Entities: map[string]interface{}{"category": "shoes"}},
	}}
	h := newHarness(t, sc, nil)
	ctx := context.Background()

	_, err := h.runner.Run(ctx, h.turn("show me shoes"))
	assert.NoError(t, err)

	sc.err = errors.New("provider down")
	_, err = h.runner.Run(ctx, h.turn("under 100"))

	assert.Error(t, err, "classifier failure during clarification must propagate")
}

func TestPipeline_FallbackToAssumptionsAfterThreeRounds(t *testing.T) {
	// Three rounds of different question types, so the clarification
	// loop trigger never accumulates, then a still-ambiguous answer.
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		{Intent: models.IntentProductSearch, Confidence: 0.9,
			Entities: map[string]interface{}{}},
		{Intent: models.IntentProductSearch, Confidence: 0.9,
			Entities: map[string]interface{}{"budget": "100"}},
		{Intent: models.IntentProductSearch, Confidence: 0.5,
			Entities: map[string]interface{}{"budget": "100", "category": "shoes"}},
		{Intent: models.IntentProductSearch, Confidence: 0.5,
			Entities: map[string]interface{}{"budget": "100", "category": "shoes"}},
	}}
	h := newHarness(t, sc, nil, &echoHandler{intent: models.IntentProductSearch})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := h.runner.Run(ctx, h.turn("something nice"))
		assert.NoError(t, err)
		assert.NotContains(t, resp.Message, "handled:", "round %d must still ask", i+1)
		assert.NotContains(t, resp.Metadata, "handoff")
	}

	// 4th turn: attempt cap reached, dispatch proceeds on assumptions.
	resp, err := h.runner.Run(ctx, h.turn("i told you, something nice"))
	assert.NoError(t, err)
	assert.Contains(t, resp.Message, "handled:product_search")
	assert.Contains(t, resp.Message, "popular")
	assert.Equal(t, true, resp.Metadata["assumed_defaults"])
}

func TestPipeline_KeywordHandoff(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		highConfidence(models.IntentUnknown, nil),
	}}
	h := newHarness(t, sc, nil)

	resp, err := h.runner.Run(context.Background(), h.turn("I want to talk to a human"))

	assert.NoError(t, err)
	assert.Equal(t, true, resp.Metadata["handoff"])
	assert.Equal(t, "keyword", resp.Metadata["handoff_reason"])
	assert.True(t, h.detector.InHandoff(context.Background(), "sess-1"))
}

func TestPipeline_LowConfidenceStreakHandoff(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		{Intent: models.IntentUnknown, Confidence: 0.3},
	}}
	h := newHarness(t, sc, nil)
	ctx := context.Background()

	var resp *models.NormalizedResponse
	var err error
	for i := 0; i < 3; i++ {
		resp, err = h.runner.Run(ctx, h.turn("mumble"))
		assert.NoError(t, err)
	}

	assert.Equal(t, true, resp.Metadata["handoff"])
	assert.Equal(t, "low_confidence", resp.Metadata["handoff_reason"])
}

func TestPipeline_DispatchFallsBackToUnknown(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		highConfidence("exotic_new_intent", nil),
	}}
	h := newHarness(t, sc, nil)

	resp, err := h.runner.Run(context.Background(), h.turn("do something odd"))

	assert.NoError(t, err)
	assert.Equal(t, "handled:unknown", resp.Message)
}

func TestPipeline_HandlerErrorDegradesToGeneric(t *testing.T) {
	sc := &scriptedClassifier{results: []*models.ClassificationResult{
		highConfidence(models.IntentCheckout, nil),
	}}
	h := newHarness(t, sc, nil, &failingHandler{intent: models.IntentCheckout})

	resp, err := h.runner.Run(context.Background(), h.turn("check out please"))

	assert.NoError(t, err)
	assert.Equal(t, true, resp.Metadata["handler_error"])
	assert.NotEmpty(t, resp.Message)
}
