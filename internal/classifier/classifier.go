// Package classifier wraps the external intent classification API. The
// classifier itself is a black box: this package only speaks its wire
// contract and maps failures to sentinel errors.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/metrics"
	"shopbot-core/internal/models"
)

var (
	ErrClassificationFailed = errors.New("CLASSIFICATION_FAILED")
	ErrClassifierTimeout    = errors.New("CLASSIFIER_TIMEOUT")
)

// Adapter is the classification boundary the pipeline consumes.
type Adapter interface {
	Classify(ctx context.Context, message string, cc *models.ConversationContext) (*models.ClassificationResult, error)
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.WithFields(map[string]interface{}{
			"component": "classifier",
		}),
	}
}

type classifyRequest struct {
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type classifyResponse struct {
	Intent     string                 `json:"intent"`
	Confidence float64                `json:"confidence"`
	Entities   map[string]interface{} `json:"entities"`
	Reasoning  string                 `json:"reasoning"`
	Provider   string                 `json:"provider"`
	Model      string                 `json:"model"`
}

// Classify sends the message plus accumulated conversation context to
// the classification API with retry and exponential backoff. A context
// deadline maps to ErrClassifierTimeout immediately, without retries.
func (c *Client) Classify(ctx context.Context, message string, cc *models.ConversationContext) (*models.ClassificationResult, error) {
	reqBody := classifyRequest{Message: message}
	if cc != nil {
		reqBody.Context = buildContextPayload(cc)
	}

	body, _ := json.Marshal(reqBody)

	started := time.Now()
	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.ClassifierDuration.WithLabelValues("timeout").Observe(time.Since(started).Seconds())
				return nil, ErrClassifierTimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/v1/classify", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)

		// If the context expired during the request, report timeout
		// immediately rather than burning the remaining retries.
		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			metrics.ClassifierDuration.WithLabelValues("timeout").Observe(time.Since(started).Seconds())
			return nil, ErrClassifierTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		metrics.ClassifierDuration.WithLabelValues("error").Observe(time.Since(started).Seconds())
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrClassifierTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, lastErr)
	}

	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrClassificationFailed)
	}
	defer resp.Body.Close()

	var apiResp classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrClassificationFailed, err)
	}

	elapsed := time.Since(started)
	metrics.ClassifierDuration.WithLabelValues("ok").Observe(elapsed.Seconds())

	result := &models.ClassificationResult{
		Intent:           apiResp.Intent,
		Confidence:       apiResp.Confidence,
		Entities:         apiResp.Entities,
		RawMessage:       message,
		Reasoning:        apiResp.Reasoning,
		Provider:         apiResp.Provider,
		Model:            apiResp.Model,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}

	c.logger.Info("message classified", map[string]interface{}{
		"intent":       result.Intent,
		"confidence":   result.Confidence,
		"entityCount":  len(result.Entities),
		"processingMs": result.ProcessingTimeMs,
	})

	return result, nil
}

// buildContextPayload selects the context the classifier benefits from.
// The prompt enrichment for clarification answers happens upstream in
// the clarification engine, not here.
func buildContextPayload(cc *models.ConversationContext) map[string]interface{} {
	payload := map[string]interface{}{
		"merchantId":   cc.MerchantID,
		"channel":      string(cc.Channel),
		"messageCount": cc.MessageCount,
		"returning":    cc.IsReturningShopper,
	}
	if len(cc.ExtractedEntities) > 0 {
		payload["knownEntities"] = cc.ExtractedEntities
	}
	if last := cc.LastIntent(); last != "" {
		payload["previousIntent"] = last
	}
	if q, ok := cc.Metadata["pendingQuestion"].(string); ok && q != "" {
		payload["lastQuestion"] = q
	}
	if n := len(cc.History); n > 0 {
		recent := cc.History
		if n > 6 {
			recent = cc.History[n-6:]
		}
		turns := make([]map[string]string, 0, len(recent))
		for _, h := range recent {
			turns = append(turns, map[string]string{"role": h.Role, "message": h.Message})
		}
		payload["recentHistory"] = turns
	}
	return payload
}
