// Package contextstore persists per-conversation state in Redis with a
// bounded lifetime. Reads fail open: a storage outage never blocks the
// pipeline. Writes are logged and swallowed.
package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	contextKeyPrefix       = "ctx:"
	clarificationKeyPrefix = "clar:"
	hybridActiveSet        = "hybrid:active"
)

// TurnDelta is what one pipeline turn learned about a conversation.
type TurnDelta struct {
	Intent         string
	Entities       map[string]interface{}
	ShopperMessage string
	BotMessage     string
}

type Store struct {
	redis        *redis.Client
	ttl          time.Duration
	historyLimit int
	logger       logger.Logger
}

func New(rdb *redis.Client, ttl time.Duration, historyLimit int, log logger.Logger) *Store {
	return &Store{
		redis:        rdb,
		ttl:          ttl,
		historyLimit: historyLimit,
		logger:       log.WithFields(map[string]interface{}{"component": "contextstore"}),
	}
}

// Load returns the stored context for a session, or a fresh one. It
// never fails: a miss initializes an empty context, and a storage error
// degrades to an empty context flagged in metadata.
func (s *Store) Load(ctx context.Context, sessionID, merchantID string, channel models.Channel) *models.ConversationContext {
	raw, err := s.redis.Get(ctx, contextKeyPrefix+sessionID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("context read failed, degrading to empty context", map[string]interface{}{
				"sessionId": sessionID,
				"error":     err.Error(),
			})
			cc := models.NewConversationContext(sessionID, merchantID, channel)
			cc.Metadata["storeError"] = true
			return cc
		}
		return models.NewConversationContext(sessionID, merchantID, channel)
	}

	var cc models.ConversationContext
	if err := json.Unmarshal([]byte(raw), &cc); err != nil {
		s.logger.Warn("context unmarshal failed, starting fresh", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return models.NewConversationContext(sessionID, merchantID, channel)
	}
	if cc.ExtractedEntities == nil {
		cc.ExtractedEntities = make(map[string]interface{})
	}
	if cc.Metadata == nil {
		cc.Metadata = make(map[string]interface{})
	}
	cc.IsReturningShopper = true
	return &cc
}

// Apply merges a turn's learnings into the loaded context.
func (s *Store) Apply(cc *models.ConversationContext, delta TurnDelta) {
	if delta.Intent != "" {
		cc.PreviousIntents = append(cc.PreviousIntents, delta.Intent)
	}
	cc.MergeEntities(delta.Entities)
	if delta.ShopperMessage != "" {
		cc.AppendTurn("shopper", delta.ShopperMessage, s.historyLimit)
	}
	if delta.BotMessage != "" {
		cc.AppendTurn("bot", delta.BotMessage, s.historyLimit)
	}
	cc.MessageCount++
	now := time.Now().UTC()
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = now
	}
	cc.LastActivityAt = now
}

// Save persists the context and refreshes its TTL. Write failures are
// logged and swallowed: weak durability is the accepted trade-off.
func (s *Store) Save(ctx context.Context, cc *models.ConversationContext) {
	data, err := json.Marshal(cc)
	if err != nil {
		s.logger.Error("context marshal failed", map[string]interface{}{
			"sessionId": cc.SessionID,
			"error":     err.Error(),
		})
		return
	}
	if err := s.redis.Set(ctx, contextKeyPrefix+cc.SessionID, data, s.ttl).Err(); err != nil {
		s.logger.Warn("context write failed, continuing", map[string]interface{}{
			"sessionId": cc.SessionID,
			"error":     err.Error(),
		})
	}
}

// Update loads, applies a delta, and saves in one call.
func (s *Store) Update(ctx context.Context, sessionID, merchantID string, channel models.Channel, delta TurnDelta) {
	cc := s.Load(ctx, sessionID, merchantID, channel)
	s.Apply(cc, delta)
	s.Save(ctx, cc)
}

// Delete hard-deletes all state for a session (consent withdrawal).
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, contextKeyPrefix+sessionID)
	pipe.Del(ctx, clarificationKeyPrefix+sessionID)
	pipe.SRem(ctx, hybridActiveSet, sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// ==========================
// Clarification state
// ==========================

// LoadClarification returns the in-flight clarification state for a
// session, or a zero state. Same fail-open policy as Load.
func (s *Store) LoadClarification(ctx context.Context, sessionID string) *models.ClarificationState {
	raw, err := s.redis.Get(ctx, clarificationKeyPrefix+sessionID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("clarification read failed", map[string]interface{}{
				"sessionId": sessionID,
				"error":     err.Error(),
			})
		}
		return &models.ClarificationState{}
	}
	var state models.ClarificationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return &models.ClarificationState{}
	}
	return &state
}

// SaveClarification persists clarification state with the context TTL.
func (s *Store) SaveClarification(ctx context.Context, sessionID string, state *models.ClarificationState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, clarificationKeyPrefix+sessionID, data, s.ttl).Err(); err != nil {
		s.logger.Warn("clarification write failed", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
	}
}

// ClearClarification drops the clarification exchange for a session.
func (s *Store) ClearClarification(ctx context.Context, sessionID string) {
	if err := s.redis.Del(ctx, clarificationKeyPrefix+sessionID).Err(); err != nil {
		s.logger.Warn("clarification delete failed", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
	}
}

// ==========================
// Hybrid mode (operator takeover)
// ==========================

// MarkHybrid flags a conversation as operator-controlled until the
// given time and registers it for the expiry sweep.
func (s *Store) MarkHybrid(ctx context.Context, cc *models.ConversationContext, until time.Time) {
	cc.Hybrid = models.HybridMode{Active: true, ExpiresAt: until}
	s.Save(ctx, cc)
	if err := s.redis.SAdd(ctx, hybridActiveSet, cc.SessionID).Err(); err != nil {
		s.logger.Warn("hybrid set add failed", map[string]interface{}{
			"sessionId": cc.SessionID,
			"error":     err.Error(),
		})
	}
}

// ClearHybrid returns a conversation to bot control.
func (s *Store) ClearHybrid(ctx context.Context, cc *models.ConversationContext) {
	cc.Hybrid = models.HybridMode{}
	s.Save(ctx, cc)
	_ = s.redis.SRem(ctx, hybridActiveSet, cc.SessionID).Err()
}

// SweepExpiredHybrid clears hybrid mode on conversations whose takeover
// window lapsed. Returns the number of conversations released.
func (s *Store) SweepExpiredHybrid(ctx context.Context) int {
	members, err := s.redis.SMembers(ctx, hybridActiveSet).Result()
	if err != nil {
		s.logger.Warn("hybrid sweep read failed", map[string]interface{}{"error": err.Error()})
		return 0
	}

	released := 0
	now := time.Now().UTC()
	for _, sessionID := range members {
		raw, err := s.redis.Get(ctx, contextKeyPrefix+sessionID).Result()
		if err != nil {
			// Context expired entirely; drop the marker.
			_ = s.redis.SRem(ctx, hybridActiveSet, sessionID).Err()
			continue
		}
		var cc models.ConversationContext
		if err := json.Unmarshal([]byte(raw), &cc); err != nil {
			_ = s.redis.SRem(ctx, hybridActiveSet, sessionID).Err()
			continue
		}
		if cc.Hybrid.Expired(now) {
			s.ClearHybrid(ctx, &cc)
			released++
		}
	}
	return released
}
