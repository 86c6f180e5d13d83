package faq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shopbot-core/internal/models"
)

var testFAQs = []models.FAQ{
	{
		ID:       "f1",
		Question: "What is your return policy?",
		Answer:   "30 days, no questions asked.",
		Keywords: []string{"return", "refund"},
		Position: 0,
	},
	{
		ID:       "f2",
		Question: "Do you ship internationally?",
		Answer:   "Yes, we ship to 40 countries.",
		Keywords: []string{"shipping", "international", "ship"},
		Position: 1,
	},
	{
		ID:       "f3",
		Question: "How long does delivery take?",
		Answer:   "3-5 business days.",
		Keywords: []string{"delivery", "how long"},
		Position: 2,
	},
}

func TestBestMatch(t *testing.T) {
	matcher := NewMatcher(0.7)

	tests := []struct {
		name       string
		message    string
		expectedID string
	}{
		{
			name:       "keyword hit on return policy",
			message:    "what's your return and refund policy?",
			expectedID: "f1",
		},
		{
			name:       "question overlap match",
			message:    "do you ship internationally?",
			expectedID: "f2",
		},
		{
			name:       "partial keyword phrase",
			message:    "how long until delivery arrives?",
			expectedID: "f3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := matcher.BestMatch(tt.message, testFAQs)
			assert.NotNil(t, match)
			assert.Equal(t, tt.expectedID, match.FAQ.ID)
			assert.GreaterOrEqual(t, match.Score, 0.7)
		})
	}
}

func TestBestMatch_NoMatch(t *testing.T) {
	matcher := NewMatcher(0.7)

	tests := []string{
		"show me some running shoes",
		"add the blue one to my cart",
		"",
	}

	for _, message := range tests {
		assert.Nil(t, matcher.BestMatch(message, testFAQs), "message: %q", message)
	}
}

func TestBestMatch_BelowThresholdSkipped(t *testing.T) {
	// One keyword of three hitting scores 0.33, under any sane threshold.
	matcher := NewMatcher(0.7)

	match := matcher.BestMatch("international something unrelated entirely words", testFAQs)
	assert.Nil(t, match)
}

func TestBestMatch_EarlierEntryWinsTie(t *testing.T) {
	matcher := NewMatcher(0.5)
	faqs := []models.FAQ{
		{ID: "a", Question: "placeholder", Keywords: []string{"promo"}, Answer: "A"},
		{ID: "b", Question: "placeholder", Keywords: []string{"promo"}, Answer: "B"},
	}

	match := matcher.BestMatch("any promo codes?", faqs)
	assert.NotNil(t, match)
	assert.Equal(t, "a", match.FAQ.ID)
}

func TestBestMatch_EmptyFAQList(t *testing.T) {
	matcher := NewMatcher(0.7)
	assert.Nil(t, matcher.BestMatch("return policy?", nil))
}
