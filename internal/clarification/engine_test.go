package clarification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
)

type fakeClassifier struct {
	result      *models.ClassificationResult
	err         error
	lastMessage string
	lastContext *models.ConversationContext
	seenPending string
}

func (f *fakeClassifier) Classify(_ context.Context, message string, cc *models.ConversationContext) (*models.ClassificationResult, error) {
	f.lastMessage = message
	f.lastContext = cc
	if cc != nil {
		if q, ok := cc.Metadata["pendingQuestion"].(string); ok {
			f.seenPending = q
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newEngine(fake *fakeClassifier) *Engine {
	return NewEngine(fake, models.MaxClarificationAttempts, logger.NewNoOpLogger())
}

func TestNeedsClarification(t *testing.T) {
	engine := newEngine(&fakeClassifier{})

	tests := []struct {
		name     string
		result   *models.ClassificationResult
		known    map[string]interface{}
		expected bool
	}{
		{
			name: "low confidence product search",
			result: &models.ClassificationResult{
				Intent: models.IntentProductSearch, Confidence: 0.6,
				Entities: map[string]interface{}{"budget": "100", "category": "shoes"},
			},
			expected: true,
		},
		{
			name: "missing budget",
			result: &models.ClassificationResult{
				Intent: models.IntentProductSearch, Confidence: 0.95,
				Entities: map[string]interface{}{"category": "shoes"},
			},
			expected: true,
		},
		{
			name: "missing entity known from context",
			result: &models.ClassificationResult{
				Intent: models.IntentProductSearch, Confidence: 0.95,
				Entities: map[string]interface{}{"category": "shoes"},
			},
			known:    map[string]interface{}{"budget": "100"},
			expected: false,
		},
		{
			name: "missing size never triggers",
			result: &models.ClassificationResult{
				Intent: models.IntentProductSearch, Confidence: 0.95,
				Entities: map[string]interface{}{"budget": "100", "category": "shoes"},
			},
			expected: false,
		},
		{
			name: "non product search never clarifies",
			result: &models.ClassificationResult{
				Intent: models.IntentGreeting, Confidence: 0.2,
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := models.NewConversationContext("s1", "m1", models.ChannelWidget)
			for k, v := range tt.known {
				cc.ExtractedEntities[k] = v
			}
			assert.Equal(t, tt.expected, engine.NeedsClarification(tt.result, cc))
		})
	}
}

func TestNextQuestion_MissingEntityBeatsLowConfidence(t *testing.T) {
	engine := newEngine(&fakeClassifier{})
	cc := models.NewConversationContext("s1", "m1", models.ChannelWidget)
	cc.ExtractedEntities["category"] = "sneakers"
	state := &models.ClarificationState{}

	result := &models.ClassificationResult{
		Intent:     models.IntentProductSearch,
		Confidence: 0.5,
		Entities:   map[string]interface{}{"category": "sneakers"},
	}

	question := engine.NextQuestion(result, cc, state)

	assert.Contains(t, question, "budget")
	assert.Contains(t, question, "sneakers")
	assert.Equal(t, TypeBudget, state.PendingType)
	assert.Equal(t, 1, state.AttemptCount)
	assert.True(t, state.Active)
}

func TestNextQuestion_LowConfidenceOnly(t *testing.T) {
	engine := newEngine(&fakeClassifier{})
	cc := models.NewConversationContext("s1", "m1", models.ChannelWidget)
	state := &models.ClarificationState{}

	result := &models.ClassificationResult{
		Intent:     models.IntentProductSearch,
		Confidence: 0.5,
		Entities:   map[string]interface{}{"budget": "100", "category": "shoes"},
	}

	engine.NextQuestion(result, cc, state)
	assert.Equal(t, TypeIntent, state.PendingType)
}

func TestProcessResponse_InjectsQuestionContext(t *testing.T) {
	fake := &fakeClassifier{
		result: &models.ClassificationResult{
			Intent:     models.IntentProductSearch,
			Confidence: 0.9,
			Entities:   map[string]interface{}{"budget": "50"},
		},
	}
	engine := newEngine(fake)

	cc := models.NewConversationContext("s1", "m1", models.ChannelWidget)
	state := &models.ClarificationState{}
	state.RecordQuestion("What's your budget for shoes?", TypeBudget)

	result, err := engine.ProcessResponse(context.Background(), "under 50", cc, state)

	assert.NoError(t, err)
	assert.Equal(t, "under 50", fake.lastMessage)
	assert.Equal(t, "What's your budget for shoes?", fake.seenPending)
	assert.Equal(t, "50", result.Entities["budget"])
	// The injected question is scoped to the call, not persisted.
	_, lingering := cc.Metadata["pendingQuestion"]
	assert.False(t, lingering)
}

func TestProcessResponse_ClassifierErrorPropagates(t *testing.T) {
	classifierErr := errors.New("provider unreachable")
	engine := newEngine(&fakeClassifier{err: classifierErr})

	cc := models.NewConversationContext("s1", "m1", models.ChannelWidget)
	state := &models.ClarificationState{}
	state.RecordQuestion("What's your budget?", TypeBudget)

	_, err := engine.ProcessResponse(context.Background(), "under 50", cc, state)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, classifierErr))
}

func TestProcessResponse_LowConfidenceTopicChangeStaysProductSearch(t *testing.T) {
	fake := &fakeClassifier{
		result: &models.ClassificationResult{
			Intent:     models.IntentUnknown,
			Confidence: 0.4,
		},
	}
	engine := newEngine(fake)

	cc := models.NewConversationContext("s1", "m1", models.ChannelWidget)
	state := &models.ClarificationState{}
	state.RecordQuestion("What's your budget?", TypeBudget)

	result, err := engine.ProcessResponse(context.Background(), "around fifty", cc, state)

	assert.NoError(t, err)
	assert.Equal(t, models.IntentProductSearch, result.Intent)
}

func TestShouldFallback_ExactlyAtThreeAttempts(t *testing.T) {
	engine := newEngine(&fakeClassifier{})
	state := &models.ClarificationState{}

	for i := 1; i <= 3; i++ {
		state.RecordQuestion("q", TypeBudget)
		if i < 3 {
			assert.False(t, engine.ShouldFallback(state), "attempt %d", i)
		} else {
			assert.True(t, engine.ShouldFallback(state))
		}
	}
}

func TestAssumptionMessage(t *testing.T) {
	engine := newEngine(&fakeClassifier{})

	cc := models.NewConversationContext("s1", "m1", models.ChannelWidget)
	assert.Contains(t, engine.AssumptionMessage(cc), "products")

	cc.ExtractedEntities["category"] = "backpacks"
	assert.Contains(t, engine.AssumptionMessage(cc), "backpacks")
}
