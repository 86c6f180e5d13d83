// Package repository reads merchant configuration from Postgres. All
// writes to merchant records happen in the operator dashboard, so this
// layer is read-only plus the monthly-spend counter.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
)

var ErrMerchantNotFound = errors.New("MERCHANT_NOT_FOUND")

type MerchantRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewMerchantRepository(db *sql.DB, log logger.Logger) *MerchantRepository {
	return &MerchantRepository{
		db: db,
		logger: log.WithFields(map[string]interface{}{
			"component": "merchant-repository",
		}),
	}
}

const merchantColumns = `id, name, personality, currency, monthly_budget_cents,
	spent_this_month_cents, paused, store_connected,
	COALESCE(operator_email, ''), COALESCE(operator_phone, ''), created_at`

// GetMerchant loads a merchant by id. Unknown ids map to
// ErrMerchantNotFound so the engine can reject the turn up front.
func (r *MerchantRepository) GetMerchant(ctx context.Context, merchantID string) (*models.Merchant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, merchantID)

	var m models.Merchant
	err := row.Scan(&m.ID, &m.Name, &m.Personality, &m.Currency,
		&m.MonthlyBudgetCents, &m.SpentThisMonthCents, &m.Paused,
		&m.StoreConnected, &m.OperatorEmail, &m.OperatorPhone, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query merchant %s: %w", merchantID, err)
	}
	return &m, nil
}

// ListFAQs returns the merchant's FAQ entries in configured order.
func (r *MerchantRepository) ListFAQs(ctx context.Context, merchantID string) ([]models.FAQ, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, question, answer, keywords, position
		 FROM merchant_faqs WHERE merchant_id = $1 ORDER BY position ASC`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("query faqs for %s: %w", merchantID, err)
	}
	defer rows.Close()

	var faqs []models.FAQ
	for rows.Next() {
		var f models.FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, pq.Array(&f.Keywords), &f.Position); err != nil {
			return nil, fmt.Errorf("scan faq row: %w", err)
		}
		faqs = append(faqs, f)
	}
	return faqs, rows.Err()
}

// RecordSpend adds a turn's cost to the merchant's monthly counter.
// Pause enforcement happens in the pipeline from the cached flag, so a
// failed write here only delays the cutoff by one refresh interval.
func (r *MerchantRepository) RecordSpend(ctx context.Context, merchantID string, cents int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE merchants SET spent_this_month_cents = spent_this_month_cents + $1 WHERE id = $2`,
		cents, merchantID)
	if err != nil {
		return fmt.Errorf("record spend for %s: %w", merchantID, err)
	}
	return nil
}

// ListUnavailableMerchantIDs returns the ids whose bot must answer with
// the pause message. The scheduler caches these in redis.
func (r *MerchantRepository) ListUnavailableMerchantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM merchants
		 WHERE paused = TRUE
		    OR monthly_budget_cents <= 0
		    OR spent_this_month_cents >= monthly_budget_cents`)
	if err != nil {
		return nil, fmt.Errorf("query unavailable merchants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan merchant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
