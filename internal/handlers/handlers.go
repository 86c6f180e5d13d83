// Package handlers implements one handler per supported intent. The
// dispatch stage selects a handler from the registry; each handler
// consumes merchant config plus conversation context and produces a
// normalized response, staying channel-agnostic through the cart key.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	commonerrors "shopbot-core/internal/common/errors"
	"shopbot-core/internal/models"
	"shopbot-core/internal/templates"
)

// Request bundles everything a handler may consume for one turn.
type Request struct {
	Merchant *models.Merchant
	Context  *models.ConversationContext
	Result   *models.ClassificationResult
	CartKey  string
}

// Handler answers one intent.
type Handler interface {
	Intent() string
	Handle(ctx context.Context, req *Request) (*models.NormalizedResponse, error)
}

// Registry maps intents to handlers. Lookup misses fall back to the
// unknown handler, which must always be registered.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) {
	r.handlers[h.Intent()] = h
}

// Get returns the handler for intent, or the unknown handler for
// anything unregistered.
func (r *Registry) Get(intent string) (Handler, error) {
	if h, ok := r.handlers[intent]; ok {
		return h, nil
	}
	if h, ok := r.handlers[models.IntentUnknown]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%s: no handler for %q and no unknown fallback", commonerrors.ErrCodeHandlerNotFound, intent)
}

// Intents lists the registered intents, for startup validation against
// the intent manifest.
func (r *Registry) Intents() []string {
	intents := make([]string, 0, len(r.handlers))
	for intent := range r.handlers {
		intents = append(intents, intent)
	}
	return intents
}

// entityString reads an entity from the classification result first,
// then the accumulated context.
func entityString(req *Request, key string) string {
	if req.Result != nil && req.Result.Entities != nil {
		if v, ok := req.Result.Entities[key]; ok && v != nil {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	if req.Context != nil {
		return req.Context.Entity(key)
	}
	return ""
}

// parseBudgetCents turns shopper-phrased budgets ("under 50", "$50",
// "50.99") into cents. Returns 0 when nothing parseable is present.
func parseBudgetCents(raw string) int64 {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.NewReplacer("under", "", "below", "", "less than", "", "$", "", ",", "").Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0
	}
	if amount, err := strconv.ParseFloat(strings.Fields(cleaned)[0], 64); err == nil && amount > 0 {
		return int64(amount * 100)
	}
	return 0
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func formatCents(cents int64, currency string) string {
	symbol := "$"
	if currency != "" && currency != "USD" {
		symbol = currency + " "
	}
	return fmt.Sprintf("%s%.2f", symbol, float64(cents)/100)
}

func renderArgs(req *Request) templates.Args {
	return templates.Args{
		MerchantName: req.Merchant.Name,
		Returning:    req.Context != nil && req.Context.IsReturningShopper,
	}
}
