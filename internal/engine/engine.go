// Package engine exposes ProcessTurn, the single entry point a
// transport layer calls: validate, load state, run the pipeline,
// persist what the turn learned, render for the channel.
package engine

import (
	"context"
	"strings"
	"time"

	"shopbot-core/internal/audit"
	"shopbot-core/internal/channel"
	"shopbot-core/internal/common/errors"
	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/metrics"
	"shopbot-core/internal/contextstore"
	"shopbot-core/internal/handoff"
	"shopbot-core/internal/models"
	"shopbot-core/internal/pipeline"
)

// returnToBotPhrases hand control back after a human takeover.
var returnToBotPhrases = []string{"return to bot", "talk to bot", "back to bot"}

// forgetPhrases trigger consent-withdrawal erasure of all stored state.
var forgetPhrases = []string{"forget my preferences", "forget me", "delete my data"}

// MerchantSource provides merchant configuration and spend tracking.
type MerchantSource interface {
	GetMerchant(ctx context.Context, merchantID string) (*models.Merchant, error)
	RecordSpend(ctx context.Context, merchantID string, cents int64) error
}

// TurnOutput pairs the transport-agnostic response with its
// channel-rendered form.
type TurnOutput struct {
	Response *models.NormalizedResponse
	Rendered *channel.RenderedMessage
}

// Options tune per-turn behavior.
type Options struct {
	// TurnCostCents is charged against the merchant's monthly budget
	// for every turn that reached the classifier.
	TurnCostCents int64
	// TakeoverWindow bounds how long an operator takeover lasts before
	// the expiry sweep hands the conversation back to the bot.
	TakeoverWindow time.Duration
}

type Engine struct {
	merchants MerchantSource
	store     *contextstore.Store
	runner    *pipeline.Runner
	detector  *handoff.Detector
	channels  *channel.Registry
	auditor   *audit.Indexer
	options   Options
	logger    logger.Logger
}

func New(
	merchants MerchantSource,
	store *contextstore.Store,
	runner *pipeline.Runner,
	detector *handoff.Detector,
	channels *channel.Registry,
	auditor *audit.Indexer,
	options Options,
	log logger.Logger,
) *Engine {
	if options.TakeoverWindow <= 0 {
		options.TakeoverWindow = 4 * time.Hour
	}
	return &Engine{
		merchants: merchants,
		store:     store,
		runner:    runner,
		detector:  detector,
		channels:  channels,
		auditor:   auditor,
		options:   options,
		logger: log.WithFields(map[string]interface{}{
			"component": "engine",
		}),
	}
}

// ProcessTurn handles one inbound message end to end. Validation
// failures return a StandardError before the pipeline runs; everything
// past validation produces a well-formed response, except a classifier
// failure during clarification re-classification, which propagates.
func (e *Engine) ProcessTurn(ctx context.Context, merchantID string, ch models.Channel, identifier, rawMessage string) (*TurnOutput, error) {
	started := time.Now()

	message := strings.TrimSpace(rawMessage)
	if message == "" {
		return nil, errors.NewEmptyMessageError()
	}
	if identifier == "" {
		return nil, errors.NewInvalidSessionError("empty session identifier")
	}
	if !ch.Valid() {
		return nil, errors.NewInvalidSessionError("unknown channel " + string(ch))
	}

	adapter, err := e.channels.Resolve(ch)
	if err != nil {
		return nil, errors.NewInvalidSessionError(err.Error())
	}

	merchant, err := e.merchants.GetMerchant(ctx, merchantID)
	if err != nil {
		return nil, errors.NewMerchantNotFoundError(merchantID)
	}

	sessionID := adapter.CartKey(identifier)

	if out, handled := e.handleControlPhrases(ctx, merchant, adapter, sessionID, message); handled {
		return out, nil
	}

	if e.detector.InHandoff(ctx, sessionID) {
		resp := &models.NormalizedResponse{}
		resp.WithMeta("suppressed", true)
		resp.WithMeta("handoff", true)
		return &TurnOutput{
			Response: resp,
			Rendered: &channel.RenderedMessage{},
		}, nil
	}

	turn := &pipeline.Turn{
		Merchant:      merchant,
		Context:       e.store.Load(ctx, sessionID, merchantID, ch),
		SessionID:     sessionID,
		Message:       message,
		CartKey:       sessionID,
		Clarification: e.store.LoadClarification(ctx, sessionID),
	}

	resp, err := e.runner.Run(ctx, turn)
	if err != nil {
		metrics.TurnsFailed.WithLabelValues(string(ch), "PIPELINE_ERROR").Inc()
		return nil, err
	}

	e.persistTurn(ctx, turn, message, resp)
	e.chargeTurn(ctx, merchant, turn)

	if turn.Handoff != nil && turn.Handoff.ShouldHandoff {
		e.store.MarkHybrid(ctx, turn.Context, time.Now().Add(e.options.TakeoverWindow))
	}

	if e.auditor != nil {
		record := audit.TurnRecord{
			MerchantID:        merchantID,
			SessionID:         sessionID,
			Channel:           string(ch),
			ShortCircuitStage: turn.ShortCircuitStage,
			LatencyMs:         time.Since(started).Milliseconds(),
		}
		if turn.Result != nil {
			record.Intent = turn.Result.Intent
			record.Confidence = turn.Result.Confidence
		}
		if turn.Handoff != nil && turn.Handoff.ShouldHandoff {
			record.HandoffReason = string(turn.Handoff.Reason)
		}
		e.auditor.Record(record)
	}

	metrics.TurnsProcessed.WithLabelValues(string(ch), resp.Intent).Inc()
	metrics.TurnDuration.WithLabelValues(string(ch)).Observe(time.Since(started).Seconds())

	return &TurnOutput{
		Response: resp,
		Rendered: adapter.Render(ctx, identifier, resp),
	}, nil
}

// handleControlPhrases implements the two out-of-band shopper commands:
// handing control back to the bot and consent withdrawal.
func (e *Engine) handleControlPhrases(ctx context.Context, merchant *models.Merchant, adapter channel.Adapter, sessionID, message string) (*TurnOutput, bool) {
	lowered := strings.ToLower(message)

	for _, phrase := range forgetPhrases {
		if strings.Contains(lowered, phrase) {
			if err := e.store.Delete(ctx, sessionID); err != nil {
				e.logger.WithError(err).Error("consent erasure failed", map[string]interface{}{
					"sessionId": sessionID,
				})
			}
			if err := e.detector.ResetState(ctx, sessionID); err != nil {
				e.logger.WithError(err).Warn("counter reset failed during erasure", nil)
			}
			resp := &models.NormalizedResponse{
				Message: "Done. I've deleted everything I knew about this conversation.",
			}
			resp.WithMeta("erased", true)
			return &TurnOutput{
				Response: resp,
				Rendered: adapter.Render(ctx, sessionID, resp),
			}, true
		}
	}

	if e.detector.InHandoff(ctx, sessionID) {
		for _, phrase := range returnToBotPhrases {
			if strings.Contains(lowered, phrase) {
				if err := e.detector.ResetState(ctx, sessionID); err != nil {
					e.logger.WithError(err).Warn("handoff reset failed", map[string]interface{}{
						"sessionId": sessionID,
					})
				}
				cc := e.store.Load(ctx, sessionID, merchant.ID, adapter.Channel())
				e.store.ClearHybrid(ctx, cc)
				resp := &models.NormalizedResponse{
					Message: "I'm back! What can I help you with?",
				}
				resp.WithMeta("handoff_cleared", true)
				return &TurnOutput{
					Response: resp,
					Rendered: adapter.Render(ctx, sessionID, resp),
				}, true
			}
		}
	}

	return nil, false
}

// persistTurn writes what the turn learned back to the store. Write
// failures are the store's concern and never fail the turn.
func (e *Engine) persistTurn(ctx context.Context, turn *pipeline.Turn, message string, resp *models.NormalizedResponse) {
	delta := contextstore.TurnDelta{
		ShopperMessage: message,
		BotMessage:     resp.Message,
	}
	if turn.Result != nil {
		delta.Intent = turn.Result.Intent
		delta.Entities = turn.Result.Entities
	}
	e.store.Apply(turn.Context, delta)
	e.store.Save(ctx, turn.Context)
}

// chargeTurn records classifier spend against the monthly budget.
func (e *Engine) chargeTurn(ctx context.Context, merchant *models.Merchant, turn *pipeline.Turn) {
	if e.options.TurnCostCents <= 0 || turn.Result == nil {
		return
	}
	if err := e.merchants.RecordSpend(ctx, merchant.ID, e.options.TurnCostCents); err != nil {
		e.logger.WithError(err).Warn("spend tracking failed", map[string]interface{}{
			"merchantId": merchant.ID,
		})
	}
}
