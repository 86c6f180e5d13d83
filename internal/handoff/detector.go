// Package handoff decides when a conversation escalates from bot to
// human. Three independent triggers: an explicit keyword, a streak of
// low-confidence classifications, and a clarification loop stuck on
// the same question type.
package handoff

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/metrics"
	"shopbot-core/internal/models"
)

const (
	confidenceKeyPrefix = "handoff:conf:"
	loopKeyPrefix       = "handoff:loop:"
	activeKeyPrefix     = "handoff:active:"
)

// DefaultKeywords fire an immediate escalation, case-insensitive.
var DefaultKeywords = []string{
	"talk to a human",
	"speak to a human",
	"talk to a person",
	"real person",
	"human agent",
	"customer service",
	"speak to someone",
	"live agent",
}

// Config tunes the streak triggers. Zero values fall back to the
// production thresholds.
type Config struct {
	ConfidenceThreshold float64
	ConfidenceStreak    int
	LoopStreak          int
	Keywords            []string
	TTL                 time.Duration
}

type Detector struct {
	redis  *redis.Client
	config Config
	logger logger.Logger
}

func NewDetector(rdb *redis.Client, config Config, log logger.Logger) *Detector {
	if config.ConfidenceThreshold <= 0 {
		config.ConfidenceThreshold = 0.5
	}
	if config.ConfidenceStreak <= 0 {
		config.ConfidenceStreak = 3
	}
	if config.LoopStreak <= 0 {
		config.LoopStreak = 3
	}
	if len(config.Keywords) == 0 {
		config.Keywords = DefaultKeywords
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	return &Detector{
		redis:  rdb,
		config: config,
		logger: log.WithFields(map[string]interface{}{
			"component": "handoff",
		}),
	}
}

// Detect evaluates all three triggers for one turn. Confidence is
// optional (nil when the turn never reached classification) and so is
// clarificationType (empty when no clarification round happened).
//
// Keyword wins over both streaks, and a keyword turn leaves the
// confidence counter unadvanced: only the triggering reason advances
// or reports state.
func (d *Detector) Detect(ctx context.Context, message, conversationID string, confidence *float64, clarificationType string) models.HandoffResult {
	if keyword := d.matchKeyword(message); keyword != "" {
		metrics.HandoffsTriggered.WithLabelValues(string(models.HandoffReasonKeyword)).Inc()
		return models.HandoffResult{
			ShouldHandoff:  true,
			Reason:         models.HandoffReasonKeyword,
			MatchedKeyword: keyword,
		}
	}

	result := models.HandoffResult{Reason: models.HandoffReasonNone}

	if confidence != nil {
		count := d.advanceConfidenceStreak(ctx, conversationID, *confidence)
		result.ConfidenceCount = count
		if count >= d.config.ConfidenceStreak {
			metrics.HandoffsTriggered.WithLabelValues(string(models.HandoffReasonLowConfidence)).Inc()
			result.ShouldHandoff = true
			result.Reason = models.HandoffReasonLowConfidence
			return result
		}
	}

	if clarificationType != "" {
		count := d.advanceLoopStreak(ctx, conversationID, clarificationType)
		result.LoopCount = count
		if count >= d.config.LoopStreak {
			metrics.HandoffsTriggered.WithLabelValues(string(models.HandoffReasonClarificationLoop)).Inc()
			result.ShouldHandoff = true
			result.Reason = models.HandoffReasonClarificationLoop
			return result
		}
	}

	return result
}

// MarkHandoff flags the conversation as operator-owned; the pipeline
// suppresses bot replies until ResetState.
func (d *Detector) MarkHandoff(ctx context.Context, conversationID string) {
	if err := d.redis.Set(ctx, activeKeyPrefix+conversationID, "1", d.config.TTL).Err(); err != nil {
		d.logger.WithError(err).Warn("failed to mark handoff", map[string]interface{}{
			"conversationId": conversationID,
		})
	}
}

// InHandoff reports whether the conversation is currently escalated.
// Store errors fail open: the bot keeps answering rather than going
// silent on an outage.
func (d *Detector) InHandoff(ctx context.Context, conversationID string) bool {
	val, err := d.redis.Get(ctx, activeKeyPrefix+conversationID).Result()
	if err != nil {
		if err != redis.Nil {
			d.logger.WithError(err).Warn("handoff flag read failed", map[string]interface{}{
				"conversationId": conversationID,
			})
		}
		return false
	}
	return val == "1"
}

// ResetState atomically clears both streaks and the active flag, so the
// next Detect behaves exactly like a brand-new conversation's first
// call. Used on human takeover completion and forget-preferences.
func (d *Detector) ResetState(ctx context.Context, conversationID string) error {
	pipe := d.redis.TxPipeline()
	pipe.Del(ctx, confidenceKeyPrefix+conversationID)
	pipe.Del(ctx, loopKeyPrefix+conversationID)
	pipe.Del(ctx, activeKeyPrefix+conversationID)
	_, err := pipe.Exec(ctx)
	return err
}

func (d *Detector) matchKeyword(message string) string {
	lowered := strings.ToLower(message)
	for _, keyword := range d.config.Keywords {
		if strings.Contains(lowered, keyword) {
			return keyword
		}
	}
	return ""
}

// advanceConfidenceStreak bumps or resets the streak and returns the
// new count. Store failures count the turn as streak 0: escalation is
// best-effort, never a hard dependency on redis.
func (d *Detector) advanceConfidenceStreak(ctx context.Context, conversationID string, confidence float64) int {
	key := confidenceKeyPrefix + conversationID

	var streak models.ConfidenceStreak
	if data, err := d.redis.Get(ctx, key).Bytes(); err == nil {
		_ = json.Unmarshal(data, &streak)
	} else if err != redis.Nil {
		d.logger.WithError(err).Warn("confidence streak read failed", map[string]interface{}{
			"conversationId": conversationID,
		})
		return 0
	}

	if confidence < d.config.ConfidenceThreshold {
		streak.Count++
	} else {
		streak.Count = 0
	}

	d.saveStreak(ctx, key, &streak)
	return streak.Count
}

// advanceLoopStreak increments the per-type counter; a different type
// resets the count to 1 so topics never accumulate across each other.
func (d *Detector) advanceLoopStreak(ctx context.Context, conversationID, clarificationType string) int {
	key := loopKeyPrefix + conversationID

	var streak models.LoopStreak
	if data, err := d.redis.Get(ctx, key).Bytes(); err == nil {
		_ = json.Unmarshal(data, &streak)
	} else if err != redis.Nil {
		d.logger.WithError(err).Warn("loop streak read failed", map[string]interface{}{
			"conversationId": conversationID,
		})
		return 0
	}

	if streak.Type == clarificationType {
		streak.Count++
	} else {
		streak.Type = clarificationType
		streak.Count = 1
	}

	d.saveStreak(ctx, key, &streak)
	return streak.Count
}

func (d *Detector) saveStreak(ctx context.Context, key string, streak interface{}) {
	data, _ := json.Marshal(streak)
	if err := d.redis.Set(ctx, key, data, d.config.TTL).Err(); err != nil {
		d.logger.WithError(err).Warn("streak write failed", map[string]interface{}{
			"key": key,
		})
	}
}
