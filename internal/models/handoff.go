package models

// HandoffReason labels why a conversation escalated to a human.
type HandoffReason string

const (
	HandoffReasonKeyword           HandoffReason = "keyword"
	HandoffReasonLowConfidence     HandoffReason = "low_confidence"
	HandoffReasonClarificationLoop HandoffReason = "clarification_loop"
	HandoffReasonNone              HandoffReason = "none"
)

// HandoffResult is the outcome of one detector evaluation.
type HandoffResult struct {
	ShouldHandoff   bool          `json:"shouldHandoff"`
	Reason          HandoffReason `json:"reason"`
	ConfidenceCount int           `json:"confidenceCount"`
	MatchedKeyword  string        `json:"matchedKeyword,omitempty"`
	LoopCount       int           `json:"loopCount"`
}

// ConfidenceStreak is the persisted state of the low-confidence trigger.
type ConfidenceStreak struct {
	Count int `json:"count"`
}

// LoopStreak is the persisted state of the clarification-loop trigger,
// scoped to one clarification type. A different type resets the count.
type LoopStreak struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}
