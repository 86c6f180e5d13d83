// Package faq scores an inbound utterance against the merchant's FAQ
// list. A confident match answers the turn without ever touching the
// classifier, which is the cheapest possible outcome of a turn.
package faq

import (
	"strings"

	"shopbot-core/internal/models"
)

// MatchThreshold is the minimum score that short-circuits the pipeline.
const MatchThreshold = 0.7

// Match is a scored FAQ candidate.
type Match struct {
	FAQ   *models.FAQ
	Score float64
}

type Matcher struct {
	threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = MatchThreshold
	}
	return &Matcher{threshold: threshold}
}

// BestMatch returns the highest-scoring FAQ at or above the threshold,
// or nil when nothing qualifies. Earlier entries win score ties, which
// is why callers pass FAQs in configured order.
func (m *Matcher) BestMatch(message string, faqs []models.FAQ) *Match {
	raw := tokenize(message, false)
	filtered := tokenize(message, true)
	if len(raw) == 0 {
		return nil
	}

	var best *Match
	for i := range faqs {
		score := scoreFAQ(raw, filtered, &faqs[i])
		if score < m.threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{FAQ: &faqs[i], Score: score}
		}
	}
	return best
}

// scoreFAQ takes the better of two signals: the fraction of configured
// keywords present in the message, and the content-token overlap with
// the FAQ question itself. Keywords match against the raw token set so
// operator phrases like "how long" still count.
func scoreFAQ(raw, filtered map[string]bool, f *models.FAQ) float64 {
	keywordScore := 0.0
	if len(f.Keywords) > 0 {
		hits := 0
		for _, kw := range f.Keywords {
			if containsPhrase(raw, kw) {
				hits++
			}
		}
		keywordScore = float64(hits) / float64(len(f.Keywords))
	}

	questionTokens := tokenize(f.Question, true)
	overlapScore := 0.0
	if len(questionTokens) > 0 {
		hits := 0
		for tok := range questionTokens {
			if filtered[tok] {
				hits++
			}
		}
		overlapScore = float64(hits) / float64(len(questionTokens))
	}

	if keywordScore > overlapScore {
		return keywordScore
	}
	return overlapScore
}

// containsPhrase checks a keyword against the token set; multi-word
// keywords require every word to be present.
func containsPhrase(tokens map[string]bool, keyword string) bool {
	for _, word := range strings.Fields(strings.ToLower(keyword)) {
		if !tokens[normalizeToken(word)] {
			return false
		}
	}
	return true
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"do": true, "does": true, "can": true, "i": true, "you": true,
	"your": true, "my": true, "to": true, "of": true, "for": true,
	"what": true, "how": true, "in": true, "on": true, "it": true,
}

func tokenize(s string, dropStopwords bool) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		tok := normalizeToken(word)
		if tok == "" {
			continue
		}
		if dropStopwords && stopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}

func normalizeToken(word string) string {
	return strings.Trim(word, ".,!?;:'\"()")
}
