package handlers

import (
	"context"
	"errors"
	"strconv"

	"shopbot-core/internal/commerce"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
	"shopbot-core/internal/templates"
)

// ==========================================================================
// add_to_cart
// ==========================================================================

type AddToCartHandler struct {
	provider  commerce.Provider
	templates *templates.Registry
	logger    logger.Logger
}

func NewAddToCartHandler(provider commerce.Provider, reg *templates.Registry, log logger.Logger) *AddToCartHandler {
	return &AddToCartHandler{provider: provider, templates: reg, logger: log}
}

func (h *AddToCartHandler) Intent() string { return models.IntentAddToCart }

func (h *AddToCartHandler) Handle(ctx context.Context, req *Request) (*models.NormalizedResponse, error) {
	productName := entityString(req, models.EntityProduct)
	if productName == "" {
		return &models.NormalizedResponse{
			Message: "Which product would you like to add to your cart?",
			Intent:  models.IntentAddToCart,
		}, nil
	}

	// The classifier gives a name, not an id; resolve through search.
	products, err := h.provider.SearchProducts(ctx, req.Merchant.ID, commerce.SearchQuery{
		Keywords: productName,
		Limit:    1,
	})
	if err != nil {
		return h.storeErrorResponse(req, err, models.IntentAddToCart)
	}
	if len(products) == 0 {
		args := renderArgs(req)
		args.Category = productName
		return &models.NormalizedResponse{
			Message: h.templates.Render(req.Merchant.Personality, templates.KindNoProducts, args),
			Intent:  models.IntentAddToCart,
		}, nil
	}

	quantity := 1
	if q := entityString(req, models.EntityQuantity); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			quantity = n
		}
	}

	cart, err := h.provider.AddToCart(ctx, req.Merchant.ID, req.CartKey, products[0].ID, quantity)
	if err != nil {
		return h.storeErrorResponse(req, err, models.IntentAddToCart)
	}

	args := renderArgs(req)
	args.ProductTitle = products[0].Title
	return &models.NormalizedResponse{
		Message: h.templates.Render(req.Merchant.Personality, templates.KindItemAdded, args),
		Intent:  models.IntentAddToCart,
		Cart:    cart,
	}, nil
}

func (h *AddToCartHandler) storeErrorResponse(req *Request, err error, intent string) (*models.NormalizedResponse, error) {
	if errors.Is(err, commerce.ErrStoreNotConnected) {
		return &models.NormalizedResponse{
			Message: h.templates.Render(req.Merchant.Personality, templates.KindStoreOffline, renderArgs(req)),
			Intent:  intent,
		}, nil
	}
	return nil, err
}

// ==========================================================================
// view_cart
// ==========================================================================

type ViewCartHandler struct {
	provider  commerce.Provider
	templates *templates.Registry
	logger    logger.Logger
}

func NewViewCartHandler(provider commerce.Provider, reg *templates.Registry, log logger.Logger) *ViewCartHandler {
	return &ViewCartHandler{provider: provider, templates: reg, logger: log}
}

func (h *ViewCartHandler) Intent() string { return models.IntentViewCart }

func (h *ViewCartHandler) Handle(ctx context.Context, req *Request) (*models.NormalizedResponse, error) {
	cart, err := h.provider.GetCart(ctx, req.Merchant.ID, req.CartKey)
	if err != nil {
		if errors.Is(err, commerce.ErrStoreNotConnected) {
			return &models.NormalizedResponse{
				Message: h.templates.Render(req.Merchant.Personality, templates.KindStoreOffline, renderArgs(req)),
				Intent:  models.IntentViewCart,
			}, nil
		}
		return nil, err
	}

	args := renderArgs(req)
	if cart == nil || len(cart.Items) == 0 {
		return &models.NormalizedResponse{
			Message: h.templates.Render(req.Merchant.Personality, templates.KindCartEmpty, args),
			Intent:  models.IntentViewCart,
		}, nil
	}

	args.CartCount = cartQuantity(cart)
	args.TotalFormatted = formatCents(cart.TotalCents, cart.Currency)
	return &models.NormalizedResponse{
		Message: h.templates.Render(req.Merchant.Personality, templates.KindCartSummary, args),
		Intent:  models.IntentViewCart,
		Cart:    cart,
	}, nil
}

// ==========================================================================
// remove_from_cart
// ==========================================================================

type RemoveFromCartHandler struct {
	provider  commerce.Provider
	templates *templates.Registry
	logger    logger.Logger
}

func NewRemoveFromCartHandler(provider commerce.Provider, reg *templates.Registry, log logger.Logger) *RemoveFromCartHandler {
	return &RemoveFromCartHandler{provider: provider, templates: reg, logger: log}
}

func (h *RemoveFromCartHandler) Intent() string { return models.IntentRemoveFromCart }

func (h *RemoveFromCartHandler) Handle(ctx context.Context, req *Request) (*models.NormalizedResponse, error) {
	productName := entityString(req, models.EntityProduct)
	if productName == "" {
		return &models.NormalizedResponse{
			Message: "Which item should I remove from your cart?",
			Intent:  models.IntentRemoveFromCart,
		}, nil
	}

	cart, err := h.provider.GetCart(ctx, req.Merchant.ID, req.CartKey)
	if err != nil {
		if errors.Is(err, commerce.ErrStoreNotConnected) {
			return &models.NormalizedResponse{
				Message: h.templates.Render(req.Merchant.Personality, templates.KindStoreOffline, renderArgs(req)),
				Intent:  models.IntentRemoveFromCart,
			}, nil
		}
		return nil, err
	}

	item := findCartItem(cart, productName)
	if item == nil {
		args := renderArgs(req)
		return &models.NormalizedResponse{
			Message: h.templates.Render(req.Merchant.Personality, templates.KindCartEmpty, args),
			Intent:  models.IntentRemoveFromCart,
		}, nil
	}

	updated, err := h.provider.RemoveFromCart(ctx, req.Merchant.ID, req.CartKey, item.ProductID)
	if err != nil {
		return nil, err
	}

	args := renderArgs(req)
	args.ProductTitle = item.Title
	return &models.NormalizedResponse{
		Message: h.templates.Render(req.Merchant.Personality, templates.KindItemRemoved, args),
		Intent:  models.IntentRemoveFromCart,
		Cart:    updated,
	}, nil
}

// ==========================================================================
// checkout
// ==========================================================================

type CheckoutHandler struct {
	provider  commerce.Provider
	templates *templates.Registry
	logger    logger.Logger
}

func NewCheckoutHandler(provider commerce.Provider, reg *templates.Registry, log logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{provider: provider, templates: reg, logger: log}
}

func (h *CheckoutHandler) Intent() string { return models.IntentCheckout }

func (h *CheckoutHandler) Handle(ctx context.Context, req *Request) (*models.NormalizedResponse, error) {
	cart, err := h.provider.GetCart(ctx, req.Merchant.ID, req.CartKey)
	if err != nil {
		if errors.Is(err, commerce.ErrStoreNotConnected) {
			return &models.NormalizedResponse{
				Message: h.templates.Render(req.Merchant.Personality, templates.KindStoreOffline, renderArgs(req)),
				Intent:  models.IntentCheckout,
			}, nil
		}
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return &models.NormalizedResponse{
			Message: h.templates.Render(req.Merchant.Personality, templates.KindCartEmpty, renderArgs(req)),
			Intent:  models.IntentCheckout,
		}, nil
	}

	checkoutURL, err := h.provider.CreateCheckout(ctx, req.Merchant.ID, req.CartKey)
	if err != nil {
		return nil, err
	}

	return &models.NormalizedResponse{
		Message:     h.templates.Render(req.Merchant.Personality, templates.KindCheckoutReady, renderArgs(req)),
		Intent:      models.IntentCheckout,
		Cart:        cart,
		CheckoutURL: checkoutURL,
	}, nil
}

func cartQuantity(cart *models.CartSnapshot) int {
	total := 0
	for _, item := range cart.Items {
		total += item.Quantity
	}
	return total
}

func findCartItem(cart *models.CartSnapshot, productName string) *models.CartItem {
	if cart == nil {
		return nil
	}
	for i := range cart.Items {
		if containsFold(cart.Items[i].Title, productName) {
			return &cart.Items[i]
		}
	}
	return nil
}
