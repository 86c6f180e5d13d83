// Package channel renders the normalized response into channel wire
// format and owns the cart-key strategy, keeping handlers and the
// pipeline channel-agnostic.
package channel

import (
	"context"
	"fmt"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
)

// Sender delivers rich structured messages out of band. The transport
// layer implements it per channel (messenger send API, widget socket).
type Sender interface {
	SendStructured(ctx context.Context, sessionID string, payload map[string]interface{}) error
}

// RenderedMessage is the channel-shaped output for one turn. Text is
// always present; Payload carries the wire-format rich message when the
// channel embeds it inline rather than side-effecting it.
type RenderedMessage struct {
	Text    string                 `json:"text"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Adapter renders responses for one channel.
type Adapter interface {
	Channel() models.Channel
	CartKey(identifier string) string
	Render(ctx context.Context, sessionID string, resp *models.NormalizedResponse) *RenderedMessage
}

// cartKey scopes the cart to the channel so a shopper's messenger cart
// never collides with their widget cart.
func cartKey(ch models.Channel, identifier string) string {
	return fmt.Sprintf("%s:%s", ch, identifier)
}

// Registry resolves adapters by channel.
type Registry struct {
	adapters map[models.Channel]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Channel]Adapter)}
	for _, a := range adapters {
		r.adapters[a.Channel()] = a
	}
	return r
}

func (r *Registry) Resolve(ch models.Channel) (Adapter, error) {
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("no adapter for channel %q", ch)
	}
	return a, nil
}

// ==========================================================================
// messenger
// ==========================================================================

// MessengerAdapter side-effects rich payloads through the send API and
// returns only the plain-text summary, because the messenger transport
// delivers text and templates as separate messages.
type MessengerAdapter struct {
	sender Sender
	logger logger.Logger
}

func NewMessengerAdapter(sender Sender, log logger.Logger) *MessengerAdapter {
	return &MessengerAdapter{
		sender: sender,
		logger: log.WithFields(map[string]interface{}{
			"component": "channel-messenger",
		}),
	}
}

func (a *MessengerAdapter) Channel() models.Channel { return models.ChannelMessenger }

func (a *MessengerAdapter) CartKey(identifier string) string {
	return cartKey(models.ChannelMessenger, identifier)
}

func (a *MessengerAdapter) Render(ctx context.Context, sessionID string, resp *models.NormalizedResponse) *RenderedMessage {
	if resp.HasStructuredPayload() && a.sender != nil {
		payload := structuredPayload(resp)
		if err := a.sender.SendStructured(ctx, sessionID, payload); err != nil {
			// The text reply still goes out; the shopper just misses
			// the carousel.
			a.logger.WithError(err).Warn("structured send failed", map[string]interface{}{
				"sessionId": sessionID,
			})
		}
	}
	return &RenderedMessage{Text: resp.Message}
}

// ==========================================================================
// widget
// ==========================================================================

// WidgetAdapter embeds the structured payload inline: the embedded web
// widget renders rich cards from the same response envelope.
type WidgetAdapter struct{}

func NewWidgetAdapter() *WidgetAdapter { return &WidgetAdapter{} }

func (a *WidgetAdapter) Channel() models.Channel { return models.ChannelWidget }

func (a *WidgetAdapter) CartKey(identifier string) string {
	return cartKey(models.ChannelWidget, identifier)
}

func (a *WidgetAdapter) Render(_ context.Context, _ string, resp *models.NormalizedResponse) *RenderedMessage {
	msg := &RenderedMessage{Text: resp.Message}
	if resp.HasStructuredPayload() {
		msg.Payload = structuredPayload(resp)
	}
	return msg
}

// structuredPayload is the shared wire shape for rich content.
func structuredPayload(resp *models.NormalizedResponse) map[string]interface{} {
	payload := make(map[string]interface{})
	if len(resp.Products) > 0 {
		cards := make([]map[string]interface{}, 0, len(resp.Products))
		for _, p := range resp.Products {
			cards = append(cards, map[string]interface{}{
				"id":         p.ID,
				"title":      p.Title,
				"priceCents": p.PriceCents,
				"currency":   p.Currency,
				"imageUrl":   p.ImageURL,
				"productUrl": p.ProductURL,
			})
		}
		payload["products"] = cards
	}
	if resp.Cart != nil {
		payload["cart"] = resp.Cart
	}
	if resp.CheckoutURL != "" {
		payload["checkoutUrl"] = resp.CheckoutURL
	}
	return payload
}
