package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shopbot-core/internal/common/logger"
)

// GraphSender delivers structured messages through the Messenger Send
// API. The recipient id is the page-scoped shopper id the webhook gave
// us.
type GraphSender struct {
	sendURL   string
	pageToken string
	client    *http.Client
	logger    logger.Logger
}

func NewGraphSender(sendURL, pageToken string, timeout time.Duration, log logger.Logger) *GraphSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GraphSender{
		sendURL:   sendURL,
		pageToken: pageToken,
		client:    &http.Client{Timeout: timeout},
		logger: log.WithFields(map[string]interface{}{
			"component": "messenger-sender",
		}),
	}
}

func (s *GraphSender) SendStructured(ctx context.Context, recipientID string, payload map[string]interface{}) error {
	attachment := genericTemplate(payload)
	if attachment == nil {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]interface{}{"attachment": attachment},
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pageToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("send api returned %d", resp.StatusCode)
	}
	return nil
}

// SendText delivers a plain-text message. The webhook transport uses it
// for the turn's text reply; structured cards go out separately.
func (s *GraphSender) SendText(ctx context.Context, recipientID, text string) error {
	if text == "" {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pageToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("send api returned %d", resp.StatusCode)
	}
	return nil
}

// genericTemplate maps the shared payload shape onto a messenger
// generic-template attachment. Returns nil when nothing card-like is
// present, buttons-only payloads go out as plain text upstream.
func genericTemplate(payload map[string]interface{}) map[string]interface{} {
	products, ok := payload["products"].([]map[string]interface{})
	if !ok || len(products) == 0 {
		return nil
	}

	elements := make([]map[string]interface{}, 0, len(products))
	for _, p := range products {
		element := map[string]interface{}{
			"title":     p["title"],
			"image_url": p["imageUrl"],
			"subtitle":  formatPrice(p),
		}
		if url, ok := p["productUrl"].(string); ok && url != "" {
			element["default_action"] = map[string]interface{}{
				"type": "web_url",
				"url":  url,
			}
		}
		elements = append(elements, element)
	}

	return map[string]interface{}{
		"type": "template",
		"payload": map[string]interface{}{
			"template_type": "generic",
			"elements":      elements,
		},
	}
}

func formatPrice(p map[string]interface{}) string {
	cents, ok := p["priceCents"].(int64)
	if !ok {
		return ""
	}
	currency, _ := p["currency"].(string)
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
}
