package handlers

import (
	"shopbot-core/internal/commerce"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/templates"
)

// NewDefaultRegistry wires the full production handler set.
func NewDefaultRegistry(provider commerce.Provider, reg *templates.Registry, searchLimit int, log logger.Logger) *Registry {
	registry := NewRegistry()
	registry.Register(NewProductSearchHandler(provider, reg, searchLimit, log))
	registry.Register(NewAddToCartHandler(provider, reg, log))
	registry.Register(NewViewCartHandler(provider, reg, log))
	registry.Register(NewRemoveFromCartHandler(provider, reg, log))
	registry.Register(NewCheckoutHandler(provider, reg, log))
	registry.Register(NewOrderStatusHandler(provider, reg, log))
	registry.Register(NewGreetingHandler(reg))
	registry.Register(NewUnknownHandler(reg))
	return registry
}
