package models

import "time"

// Personality selects the merchant's response template set.
type Personality string

const (
	PersonalityFriendly     Personality = "friendly"
	PersonalityProfessional Personality = "professional"
	PersonalityPlayful      Personality = "playful"
)

// Merchant is the per-tenant configuration the pipeline consumes.
type Merchant struct {
	ID                  string      `json:"id" db:"id"`
	Name                string      `json:"name" db:"name"`
	Personality         Personality `json:"personality" db:"personality"`
	Currency            string      `json:"currency" db:"currency"`
	MonthlyBudgetCents  int64       `json:"monthlyBudgetCents" db:"monthly_budget_cents"`
	SpentThisMonthCents int64       `json:"spentThisMonthCents" db:"spent_this_month_cents"`
	Paused              bool        `json:"paused" db:"paused"`
	StoreConnected      bool        `json:"storeConnected" db:"store_connected"`
	OperatorEmail       string      `json:"operatorEmail,omitempty" db:"operator_email"`
	OperatorPhone       string      `json:"operatorPhone,omitempty" db:"operator_phone"`
	CreatedAt           time.Time   `json:"createdAt" db:"created_at"`
}

// BudgetExhausted reports whether the merchant's monthly cap is reached.
// A zero budget means the bot was never funded.
func (m *Merchant) BudgetExhausted() bool {
	return m.MonthlyBudgetCents <= 0 || m.SpentThisMonthCents >= m.MonthlyBudgetCents
}

// Unavailable reports whether the bot must answer with the fixed pause
// message: explicit pause, zero budget, or cap reached.
func (m *Merchant) Unavailable() bool {
	return m.Paused || m.BudgetExhausted()
}

// FAQ is one merchant-configured question/answer pair. Order matters:
// earlier entries win ties.
type FAQ struct {
	ID       string   `json:"id" db:"id"`
	Question string   `json:"question" db:"question"`
	Answer   string   `json:"answer" db:"answer"`
	Keywords []string `json:"keywords,omitempty" db:"keywords"`
	Position int      `json:"position" db:"position"`
}
