package handlers

import (
	"context"
	"errors"
	"strings"

	"shopbot-core/internal/commerce"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
	"shopbot-core/internal/templates"
)

const defaultSearchLimit = 5

type ProductSearchHandler struct {
	provider  commerce.Provider
	templates *templates.Registry
	limit     int
	logger    logger.Logger
}

func NewProductSearchHandler(provider commerce.Provider, reg *templates.Registry, limit int, log logger.Logger) *ProductSearchHandler {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &ProductSearchHandler{provider: provider, templates: reg, limit: limit, logger: log}
}

func (h *ProductSearchHandler) Intent() string { return models.IntentProductSearch }

func (h *ProductSearchHandler) Handle(ctx context.Context, req *Request) (*models.NormalizedResponse, error) {
	query := commerce.SearchQuery{
		Keywords:      searchKeywords(req),
		Category:      entityString(req, models.EntityCategory),
		MaxPriceCents: parseBudgetCents(entityString(req, models.EntityBudget)),
		Limit:         h.limit,
	}

	products, err := h.provider.SearchProducts(ctx, req.Merchant.ID, query)
	if err != nil {
		if errors.Is(err, commerce.ErrStoreNotConnected) {
			return &models.NormalizedResponse{
				Message: h.templates.Render(req.Merchant.Personality, templates.KindStoreOffline, renderArgs(req)),
				Intent:  models.IntentProductSearch,
			}, nil
		}
		return nil, err
	}

	args := renderArgs(req)
	args.Category = query.Category
	args.ProductCount = len(products)

	if len(products) == 0 {
		return &models.NormalizedResponse{
			Message: h.templates.Render(req.Merchant.Personality, templates.KindNoProducts, args),
			Intent:  models.IntentProductSearch,
		}, nil
	}

	return &models.NormalizedResponse{
		Message:  h.templates.Render(req.Merchant.Personality, templates.KindProductsFound, args),
		Intent:   models.IntentProductSearch,
		Products: products,
	}, nil
}

// searchKeywords prefers the specific product name, then the raw
// utterance with filler trimmed.
func searchKeywords(req *Request) string {
	if name := entityString(req, models.EntityProduct); name != "" {
		return name
	}
	if req.Result != nil && req.Result.RawMessage != "" {
		return strings.TrimSpace(req.Result.RawMessage)
	}
	return entityString(req, models.EntityCategory)
}
