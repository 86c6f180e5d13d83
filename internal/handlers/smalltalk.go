package handlers

import (
	"context"

	"shopbot-core/internal/models"
	"shopbot-core/internal/templates"
)

type GreetingHandler struct {
	templates *templates.Registry
}

func NewGreetingHandler(reg *templates.Registry) *GreetingHandler {
	return &GreetingHandler{templates: reg}
}

func (h *GreetingHandler) Intent() string { return models.IntentGreeting }

func (h *GreetingHandler) Handle(_ context.Context, req *Request) (*models.NormalizedResponse, error) {
	return &models.NormalizedResponse{
		Message: h.templates.Render(req.Merchant.Personality, templates.KindGreeting, renderArgs(req)),
		Intent:  models.IntentGreeting,
	}, nil
}

type UnknownHandler struct {
	templates *templates.Registry
}

func NewUnknownHandler(reg *templates.Registry) *UnknownHandler {
	return &UnknownHandler{templates: reg}
}

func (h *UnknownHandler) Intent() string { return models.IntentUnknown }

func (h *UnknownHandler) Handle(_ context.Context, req *Request) (*models.NormalizedResponse, error) {
	return &models.NormalizedResponse{
		Message: h.templates.Render(req.Merchant.Personality, templates.KindUnknown, renderArgs(req)),
		Intent:  models.IntentUnknown,
	}, nil
}
