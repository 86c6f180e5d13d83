package models

// MaxClarificationAttempts caps the clarification loop before the
// engine falls back to assumptions.
const MaxClarificationAttempts = 3

// ClarificationState tracks an in-flight clarification exchange for one
// session.
type ClarificationState struct {
	QuestionsAsked []string `json:"questionsAsked,omitempty"`
	AttemptCount   int      `json:"attemptCount"`
	Active         bool     `json:"active"`
	PendingType    string   `json:"pendingType,omitempty"` // entity the last question asked about
}

// LastQuestion returns the most recently asked question, or "".
func (s *ClarificationState) LastQuestion() string {
	if len(s.QuestionsAsked) == 0 {
		return ""
	}
	return s.QuestionsAsked[len(s.QuestionsAsked)-1]
}

// RecordQuestion marks one clarification round. The attempt counter
// increments exactly once per round.
func (s *ClarificationState) RecordQuestion(question, pendingType string) {
	s.QuestionsAsked = append(s.QuestionsAsked, question)
	s.AttemptCount++
	s.Active = true
	s.PendingType = pendingType
}

// ShouldFallback reports whether the engine must stop asking.
func (s *ClarificationState) ShouldFallback() bool {
	return s.AttemptCount >= MaxClarificationAttempts
}
