// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot-core/internal/channel"
	"shopbot-core/internal/clarification"
	"shopbot-core/internal/classifier"
	"shopbot-core/internal/commerce"
	"shopbot-core/internal/common/errors"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/contextstore"
	"shopbot-core/internal/engine"
	"shopbot-core/internal/faq"
	"shopbot-core/internal/handlers"
	"shopbot-core/internal/handoff"
	"shopbot-core/internal/models"
	"shopbot-core/internal/pipeline"
	"shopbot-core/internal/templates"
)

// classifierScript serves canned classification results in order and
// counts how many calls actually reached the API.
type classifierScript struct {
	mu      sync.Mutex
	results []map[string]interface{}
	calls   int
}

func (s *classifierScript) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.calls >= len(s.results) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		result := s.results[s.calls]
		s.calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func (s *classifierScript) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// commerceFake serves the minimal product and cart surface the
// handlers touch.
func commerceFake(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/merchants/{merchantID}/products", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"products": []models.Product{
				{ID: "p-1", Title: "Trail Runner X", PriceCents: 7999, Currency: "USD", InStock: true},
				{ID: "p-2", Title: "Road Glide 2", PriceCents: 6499, Currency: "USD", InStock: true},
			},
		})
	})
	mux.HandleFunc("POST /v1/merchants/{merchantID}/carts/{cartKey}/items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.CartSnapshot{
			Items: []models.CartItem{
				{ProductID: "p-1", Title: "Trail Runner X", Quantity: 1, PriceCents: 7999},
			},
			TotalCents: 7999,
			Currency:   "USD",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type merchantDirectory struct {
	mu        sync.Mutex
	merchants map[string]*models.Merchant
	spend     map[string]int64
}

func (d *merchantDirectory) GetMerchant(_ context.Context, id string) (*models.Merchant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.merchants[id]
	if !ok {
		return nil, errors.NewMerchantNotFoundError(id)
	}
	return m, nil
}

func (d *merchantDirectory) RecordSpend(_ context.Context, id string, cents int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spend[id] += cents
	return nil
}

type faqTable struct {
	faqs map[string][]models.FAQ
}

func (f *faqTable) ListFAQs(_ context.Context, merchantID string) ([]models.FAQ, error) {
	return f.faqs[merchantID], nil
}

type world struct {
	engine     *engine.Engine
	store      *contextstore.Store
	detector   *handoff.Detector
	directory  *merchantDirectory
	classifier *classifierScript
}

func newWorld(t *testing.T, script *classifierScript, faqs *faqTable) *world {
	t.Helper()

	classifierServer := httptest.NewServer(script.handler())
	t.Cleanup(classifierServer.Close)
	commerceServer := commerceFake(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewNoOpLogger()

	classifierClient := classifier.NewClient(&classifier.Config{
		BaseURL: classifierServer.URL,
		Timeout: 5 * time.Second,
	}, log)
	commerceClient := commerce.NewClient(&commerce.Config{
		BaseURL: commerceServer.URL,
		Timeout: 5 * time.Second,
	}, log)

	tmpl, err := templates.NewRegistry()
	require.NoError(t, err)

	store := contextstore.New(rdb, time.Hour, 40, log)
	detector := handoff.NewDetector(rdb, handoff.Config{}, log)
	clarEngine := clarification.NewEngine(classifierClient, 3, log)
	handlerRegistry := handlers.NewDefaultRegistry(commerceClient, tmpl, 5, log)

	runner := pipeline.NewRunner(log,
		pipeline.NewFAQStage(faqs, faq.NewMatcher(0.7), log),
		pipeline.NewBudgetStage(pipeline.NewPauseCache(rdb, time.Minute, log), tmpl, log),
		pipeline.NewClassifyStage(classifierClient, clarEngine, tmpl, log),
		pipeline.NewClarifyStage(clarEngine, store, log),
		pipeline.NewHandoffStage(detector, tmpl, nil, log),
		pipeline.NewDispatchStage(handlerRegistry, tmpl, log),
	)

	directory := &merchantDirectory{
		merchants: map[string]*models.Merchant{
			"merch-1": {
				ID:                 "merch-1",
				Name:               "Summit Outfitters",
				Personality:        models.PersonalityFriendly,
				MonthlyBudgetCents: 500000,
				StoreConnected:     true,
			},
			"merch-paused": {
				ID:                  "merch-paused",
				Name:                "Paused Goods",
				Personality:         models.PersonalityFriendly,
				MonthlyBudgetCents:  1000,
				SpentThisMonthCents: 1000,
				StoreConnected:      true,
			},
		},
		spend: make(map[string]int64),
	}

	channels := channel.NewRegistry(
		channel.NewMessengerAdapter(nil, log),
		channel.NewWidgetAdapter(),
	)

	eng := engine.New(directory, store, runner, detector, channels, nil, engine.Options{TurnCostCents: 2}, log)
	return &world{
		engine:     eng,
		store:      store,
		detector:   detector,
		directory:  directory,
		classifier: script,
	}
}

func TestFAQShortCircuitSkipsClassifier(t *testing.T) {
	script := &classifierScript{}
	faqs := &faqTable{faqs: map[string][]models.FAQ{
		"merch-1": {
			{ID: "faq-1", Question: "What is your return policy?", Answer: "30 days, no questions asked.", Keywords: []string{"return policy", "returns"}},
		},
	}}
	w := newWorld(t, script, faqs)

	out, err := w.engine.ProcessTurn(context.Background(), "merch-1", models.ChannelWidget, "sess-1", "what's your return policy?")

	require.NoError(t, err)
	assert.Equal(t, "30 days, no questions asked.", out.Response.Message)
	assert.Equal(t, 0, script.callCount())
}

func TestProductSearchRendersCards(t *testing.T) {
	script := &classifierScript{results: []map[string]interface{}{
		{
			"intent":     "product_search",
			"confidence": 0.95,
			"entities": map[string]interface{}{
				"category": "running shoes",
				"budget":   "under 100",
			},
		},
	}}
	w := newWorld(t, script, &faqTable{})

	out, err := w.engine.ProcessTurn(context.Background(), "merch-1", models.ChannelWidget, "sess-1", "running shoes under $100")

	require.NoError(t, err)
	assert.Contains(t, out.Rendered.Text, "2")
	require.NotNil(t, out.Rendered.Payload)
	cards := out.Rendered.Payload["products"].([]map[string]interface{})
	assert.Len(t, cards, 2)
	assert.Equal(t, "Trail Runner X", cards[0]["title"])

	w.directory.mu.Lock()
	defer w.directory.mu.Unlock()
	assert.Equal(t, int64(2), w.directory.spend["merch-1"])
}

func TestClarificationRoundTrip(t *testing.T) {
	script := &classifierScript{results: []map[string]interface{}{
		{
			"intent":     "product_search",
			"confidence": 0.9,
			"entities":   map[string]interface{}{"category": "shoes"},
		},
		{
			"intent":     "product_search",
			"confidence": 0.92,
			"entities":   map[string]interface{}{"category": "shoes", "budget": "under 80"},
		},
	}}
	w := newWorld(t, script, &faqTable{})
	ctx := context.Background()

	out, err := w.engine.ProcessTurn(ctx, "merch-1", models.ChannelWidget, "sess-1", "I need shoes")
	require.NoError(t, err)
	assert.Equal(t, "What's your budget for shoes?", out.Response.Message)
	assert.Equal(t, "budget", out.Response.Metadata["clarification"])

	out, err = w.engine.ProcessTurn(ctx, "merch-1", models.ChannelWidget, "sess-1", "under 80")
	require.NoError(t, err)
	assert.NotContains(t, out.Response.Metadata, "clarification")
	assert.Len(t, out.Response.Products, 2)
	assert.Equal(t, 2, script.callCount())
}

func TestKeywordHandoffThenSuppression(t *testing.T) {
	script := &classifierScript{results: []map[string]interface{}{
		{"intent": "unknown", "confidence": 0.4, "entities": map[string]interface{}{}},
	}}
	w := newWorld(t, script, &faqTable{})
	ctx := context.Background()

	out, err := w.engine.ProcessTurn(ctx, "merch-1", models.ChannelWidget, "sess-1", "I want to talk to a human")
	require.NoError(t, err)
	assert.Equal(t, true, out.Response.Metadata["handoff"])
	assert.Contains(t, out.Response.Message, "team")

	cc := w.store.Load(ctx, "widget:sess-1", "merch-1", models.ChannelWidget)
	assert.True(t, cc.Hybrid.Active)

	// Turns during the takeover are swallowed without classification.
	out, err = w.engine.ProcessTurn(ctx, "merch-1", models.ChannelWidget, "sess-1", "hello?")
	require.NoError(t, err)
	assert.Equal(t, true, out.Response.Metadata["suppressed"])
	assert.Equal(t, 1, script.callCount())

	// Until the shopper asks for the bot back.
	out, err = w.engine.ProcessTurn(ctx, "merch-1", models.ChannelWidget, "sess-1", "back to bot")
	require.NoError(t, err)
	assert.Equal(t, true, out.Response.Metadata["handoff_cleared"])
	assert.False(t, w.detector.InHandoff(ctx, "widget:sess-1"))
	cc = w.store.Load(ctx, "widget:sess-1", "merch-1", models.ChannelWidget)
	assert.False(t, cc.Hybrid.Active)
}

func TestExhaustedBudgetPausesMerchant(t *testing.T) {
	script := &classifierScript{}
	w := newWorld(t, script, &faqTable{})

	out, err := w.engine.ProcessTurn(context.Background(), "merch-paused", models.ChannelWidget, "sess-1", "show me jackets")

	require.NoError(t, err)
	assert.Equal(t, true, out.Response.Metadata["is_paused"])
	assert.Equal(t, 0, script.callCount())

	w.directory.mu.Lock()
	defer w.directory.mu.Unlock()
	assert.Zero(t, w.directory.spend["merch-paused"])
}
