package handlers

import (
	"context"
	"errors"

	"shopbot-core/internal/commerce"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
	"shopbot-core/internal/templates"
)

type OrderStatusHandler struct {
	provider  commerce.Provider
	templates *templates.Registry
	logger    logger.Logger
}

func NewOrderStatusHandler(provider commerce.Provider, reg *templates.Registry, log logger.Logger) *OrderStatusHandler {
	return &OrderStatusHandler{provider: provider, templates: reg, logger: log}
}

func (h *OrderStatusHandler) Intent() string { return models.IntentOrderStatus }

func (h *OrderStatusHandler) Handle(ctx context.Context, req *Request) (*models.NormalizedResponse, error) {
	orderID := entityString(req, models.EntityOrderID)
	if orderID == "" {
		return &models.NormalizedResponse{
			Message: "Sure, what's your order number?",
			Intent:  models.IntentOrderStatus,
		}, nil
	}

	status, err := h.provider.GetOrderStatus(ctx, req.Merchant.ID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, commerce.ErrOrderNotFound):
			return &models.NormalizedResponse{
				Message: "I couldn't find an order with that number. Could you double-check it?",
				Intent:  models.IntentOrderStatus,
			}, nil
		case errors.Is(err, commerce.ErrStoreNotConnected):
			return &models.NormalizedResponse{
				Message: h.templates.Render(req.Merchant.Personality, templates.KindStoreOffline, renderArgs(req)),
				Intent:  models.IntentOrderStatus,
			}, nil
		}
		return nil, err
	}

	args := renderArgs(req)
	args.OrderID = status.OrderID
	args.OrderState = status.Status
	args.ETA = status.ETA

	resp := &models.NormalizedResponse{
		Message: h.templates.Render(req.Merchant.Personality, templates.KindOrderStatus, args),
		Intent:  models.IntentOrderStatus,
	}
	if status.TrackingURL != "" {
		resp.WithMeta("trackingUrl", status.TrackingURL)
	}
	return resp, nil
}
