package pipeline

import "shopbot-core/internal/models"

// Outcome is the explicit stage result: either the turn continues to
// the next stage, or the stage produced the final response and the
// chain stops. Making the short-circuit a type keeps the contract
// visible at every stage boundary.
type Outcome struct {
	response *models.NormalizedResponse
}

// Continue passes the turn to the next stage.
func Continue() Outcome {
	return Outcome{}
}

// Respond terminates the chain with a final response.
func Respond(resp *models.NormalizedResponse) Outcome {
	return Outcome{response: resp}
}

// Final returns the terminal response and whether the stage
// short-circuited.
func (o Outcome) Final() (*models.NormalizedResponse, bool) {
	return o.response, o.response != nil
}
