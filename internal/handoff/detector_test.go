package handoff

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
)

func newTestDetector(t *testing.T) *Detector {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewDetector(rdb, Config{}, logger.NewNoOpLogger())
}

func conf(v float64) *float64 { return &v }

func TestDetect_KeywordTrigger(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	tests := []struct {
		message string
		keyword string
	}{
		{"I want to talk to a human please", "talk to a human"},
		{"TALK TO A HUMAN", "talk to a human"},
		{"can I get customer service?", "customer service"},
		{"give me a real person now", "real person"},
	}

	for _, tt := range tests {
		result := detector.Detect(ctx, tt.message, "c1", nil, "")
		assert.True(t, result.ShouldHandoff, "message: %q", tt.message)
		assert.Equal(t, models.HandoffReasonKeyword, result.Reason)
		assert.Equal(t, tt.keyword, result.MatchedKeyword)
	}
}

func TestDetect_LowConfidenceStreakFiresOnThird(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	for i, c := range []float64{0.3, 0.4} {
		result := detector.Detect(ctx, "hmm", "c1", conf(c), "")
		assert.False(t, result.ShouldHandoff, "call %d", i+1)
		assert.Equal(t, i+1, result.ConfidenceCount)
	}

	result := detector.Detect(ctx, "hmm", "c1", conf(0.2), "")
	assert.True(t, result.ShouldHandoff)
	assert.Equal(t, models.HandoffReasonLowConfidence, result.Reason)
	assert.Equal(t, 3, result.ConfidenceCount)
}

func TestDetect_HighConfidenceResetsStreak(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	detector.Detect(ctx, "m", "c1", conf(0.3), "")
	detector.Detect(ctx, "m", "c1", conf(0.4), "")
	result := detector.Detect(ctx, "m", "c1", conf(0.9), "")
	assert.Equal(t, 0, result.ConfidenceCount)

	// The streak restarts from scratch.
	result = detector.Detect(ctx, "m", "c1", conf(0.3), "")
	assert.False(t, result.ShouldHandoff)
	assert.Equal(t, 1, result.ConfidenceCount)
}

func TestDetect_ClarificationLoopSameType(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		result := detector.Detect(ctx, "m", "c1", nil, "budget")
		assert.False(t, result.ShouldHandoff)
		assert.Equal(t, i, result.LoopCount)
	}

	result := detector.Detect(ctx, "m", "c1", nil, "budget")
	assert.True(t, result.ShouldHandoff)
	assert.Equal(t, models.HandoffReasonClarificationLoop, result.Reason)
	assert.Equal(t, 3, result.LoopCount)
}

func TestDetect_DifferentTypeResetsLoopToOne(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	detector.Detect(ctx, "m", "c1", nil, "budget")
	detector.Detect(ctx, "m", "c1", nil, "budget")

	result := detector.Detect(ctx, "m", "c1", nil, "color")
	assert.False(t, result.ShouldHandoff)
	assert.Equal(t, 1, result.LoopCount)
}

func TestDetect_KeywordWinsAndLeavesConfidenceUnadvanced(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	detector.Detect(ctx, "m", "c1", conf(0.3), "")
	detector.Detect(ctx, "m", "c1", conf(0.4), "")

	// Would be the 3rd low turn, but the keyword takes priority and the
	// counter must not advance.
	result := detector.Detect(ctx, "just let me talk to a human", "c1", conf(0.2), "")
	assert.True(t, result.ShouldHandoff)
	assert.Equal(t, models.HandoffReasonKeyword, result.Reason)
	assert.Equal(t, 0, result.ConfidenceCount)

	// Next low-confidence turn continues from 2, not from a fired state.
	result = detector.Detect(ctx, "m", "c1", conf(0.2), "")
	assert.True(t, result.ShouldHandoff)
	assert.Equal(t, models.HandoffReasonLowConfidence, result.Reason)
	assert.Equal(t, 3, result.ConfidenceCount)
}

func TestDetect_ConversationsAreIndependent(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	detector.Detect(ctx, "m", "c1", conf(0.3), "")
	detector.Detect(ctx, "m", "c1", conf(0.3), "")

	result := detector.Detect(ctx, "m", "c2", conf(0.3), "")
	assert.False(t, result.ShouldHandoff)
	assert.Equal(t, 1, result.ConfidenceCount)
}

func TestResetState(t *testing.T) {
	detector := newTestDetector(t)
	ctx := context.Background()

	detector.Detect(ctx, "m", "c1", conf(0.3), "budget")
	detector.Detect(ctx, "m", "c1", conf(0.3), "budget")
	detector.MarkHandoff(ctx, "c1")
	assert.True(t, detector.InHandoff(ctx, "c1"))

	assert.NoError(t, detector.ResetState(ctx, "c1"))

	assert.False(t, detector.InHandoff(ctx, "c1"))
	result := detector.Detect(ctx, "m", "c1", conf(0.3), "budget")
	assert.False(t, result.ShouldHandoff)
	assert.Equal(t, 1, result.ConfidenceCount)
	assert.Equal(t, 1, result.LoopCount)
}

func TestDetect_NoSignalsPassesThrough(t *testing.T) {
	detector := newTestDetector(t)

	result := detector.Detect(context.Background(), "show me shoes", "c1", nil, "")
	assert.False(t, result.ShouldHandoff)
	assert.Equal(t, models.HandoffReasonNone, result.Reason)
	assert.Equal(t, 0, result.ConfidenceCount)
	assert.Equal(t, 0, result.LoopCount)
}
