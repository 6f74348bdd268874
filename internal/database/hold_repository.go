package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

var (
	// ErrHoldNotFound is returned when a hold is not found.
	ErrHoldNotFound = errors.New("authorization hold not found")
	// ErrHoldVersionConflict is returned when an update's expected version
	// does not match the stored row, signalling a concurrent writer won.
	ErrHoldVersionConflict = errors.New("authorization hold version conflict")
)

// HoldRepository handles persistence for AuthorizationHold, the money
// state machine backing an approved/partial decision.
type HoldRepository struct {
	db Querier
}

func NewHoldRepository(db *DB) *HoldRepository {
	return &HoldRepository{db: db.pool}
}

// WithTx returns a HoldRepository bound to tx instead of the pool, so its
// writes participate in the caller's transaction.
func (r *HoldRepository) WithTx(tx pgx.Tx) *HoldRepository {
	return &HoldRepository{db: tx}
}

func (r *HoldRepository) Create(ctx context.Context, h *domain.AuthorizationHold) error {
	query := `INSERT INTO authorization_holds (
		hold_id, request_id, decision_id, account_id, account_space_id, card_id,
		merchant_id, merchant_name, amount, currency, original_amount, original_currency,
		exchange_rate, authorization_code, status, captured_amount, created_at, updated_at,
		captured_at, expires_at, version
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

	_, err := r.db.Exec(ctx, query,
		h.HoldID, h.RequestID, h.DecisionID, h.AccountID, h.AccountSpaceID, h.CardID,
		h.MerchantID, h.MerchantName, h.Amount, h.Currency, nullDecimal(h.OriginalAmount), nullString(h.OriginalCurrency),
		nullDecimal(h.ExchangeRate), h.AuthorizationCode, string(h.Status), h.CapturedAmount, h.CreatedAt, h.UpdatedAt,
		h.CapturedAt, h.ExpiresAt, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization hold: %w", err)
	}
	return nil
}

func (r *HoldRepository) GetByID(ctx context.Context, holdID int64) (*domain.AuthorizationHold, error) {
	query := `SELECT
		hold_id, request_id, decision_id, account_id, account_space_id, card_id,
		merchant_id, merchant_name, amount, currency, original_amount, original_currency,
		exchange_rate, authorization_code, status, captured_amount, created_at, updated_at,
		captured_at, expires_at, version
	FROM authorization_holds WHERE hold_id = $1`

	var h domain.AuthorizationHold
	var status string
	var originalAmount, exchangeRate *decimal.Decimal
	var originalCurrency *string

	err := r.db.QueryRow(ctx, query, holdID).Scan(
		&h.HoldID, &h.RequestID, &h.DecisionID, &h.AccountID, &h.AccountSpaceID, &h.CardID,
		&h.MerchantID, &h.MerchantName, &h.Amount, &h.Currency, &originalAmount, &originalCurrency,
		&exchangeRate, &h.AuthorizationCode, &status, &h.CapturedAmount, &h.CreatedAt, &h.UpdatedAt,
		&h.CapturedAt, &h.ExpiresAt, &h.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to get authorization hold %d: %w", holdID, err)
	}
	h.Status = domain.HoldStatus(status)
	if originalAmount != nil {
		h.OriginalAmount = *originalAmount
	}
	if originalCurrency != nil {
		h.OriginalCurrency = *originalCurrency
	}
	if exchangeRate != nil {
		h.ExchangeRate = *exchangeRate
	}
	return &h, nil
}

// UpdateTransition applies a status transition (capture/release/expire)
// with an optimistic-concurrency guard on Version. Returns
// ErrHoldVersionConflict if expectedVersion no longer matches the stored
// row (another writer linearized ahead of this one).
func (r *HoldRepository) UpdateTransition(ctx context.Context, holdID int64, expectedVersion int, newStatus domain.HoldStatus, capturedAmount decimal.Decimal, capturedAt *time.Time, updatedAt time.Time) error {
	query := `UPDATE authorization_holds
		SET status = $3, captured_amount = $4, captured_at = $5, updated_at = $6, version = version + 1
		WHERE hold_id = $1 AND version = $2`

	commandTag, err := r.db.Exec(ctx, query, holdID, expectedVersion, string(newStatus), capturedAmount, capturedAt, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update hold %d: %w", holdID, err)
	}
	if commandTag.RowsAffected() == 0 {
		// Distinguish "doesn't exist" from "version conflict" for a clearer caller error.
		if _, err := r.GetByID(ctx, holdID); errors.Is(err, ErrHoldNotFound) {
			return ErrHoldNotFound
		}
		return ErrHoldVersionConflict
	}
	return nil
}

// ListExpiredActive returns up to limit ACTIVE holds whose expiresAt is at
// or before asOf, for the sweeper to process.
func (r *HoldRepository) ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*domain.AuthorizationHold, error) {
	query := `SELECT
		hold_id, request_id, decision_id, account_id, account_space_id, card_id,
		merchant_id, merchant_name, amount, currency, original_amount, original_currency,
		exchange_rate, authorization_code, status, captured_amount, created_at, updated_at,
		captured_at, expires_at, version
	FROM authorization_holds WHERE status = 'ACTIVE' AND expires_at <= $1 ORDER BY expires_at ASC LIMIT $2`

	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}
	defer rows.Close()

	var holds []*domain.AuthorizationHold
	for rows.Next() {
		var h domain.AuthorizationHold
		var status string
		var originalAmount, exchangeRate *decimal.Decimal
		var originalCurrency *string

		if err := rows.Scan(
			&h.HoldID, &h.RequestID, &h.DecisionID, &h.AccountID, &h.AccountSpaceID, &h.CardID,
			&h.MerchantID, &h.MerchantName, &h.Amount, &h.Currency, &originalAmount, &originalCurrency,
			&exchangeRate, &h.AuthorizationCode, &status, &h.CapturedAmount, &h.CreatedAt, &h.UpdatedAt,
			&h.CapturedAt, &h.ExpiresAt, &h.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expired hold row: %w", err)
		}
		h.Status = domain.HoldStatus(status)
		if originalAmount != nil {
			h.OriginalAmount = *originalAmount
		}
		if originalCurrency != nil {
			h.OriginalCurrency = *originalCurrency
		}
		if exchangeRate != nil {
			h.ExchangeRate = *exchangeRate
		}
		holds = append(holds, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during expired hold row iteration: %w", err)
	}
	return holds, nil
}

// RecordOperation stores the result of an idempotent capture/release
// operation keyed by (holdId, operationKey), so a repeated call with the
// same key can return the prior result instead of reprocessing.
func (r *HoldRepository) RecordOperation(ctx context.Context, holdID int64, operationKey, operation, resultStatus string, resultCapturedAmount decimal.Decimal) error {
	if operationKey == "" {
		return nil
	}
	_, err := r.db.Exec(ctx, `INSERT INTO idempotency_operations (hold_id, operation_key, operation, result_status, result_captured_amount)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (hold_id, operation_key) DO NOTHING`,
		holdID, operationKey, operation, resultStatus, resultCapturedAmount)
	if err != nil {
		return fmt.Errorf("failed to record hold operation: %w", err)
	}
	return nil
}

// FindOperation looks up a previously recorded operation result.
func (r *HoldRepository) FindOperation(ctx context.Context, holdID int64, operationKey string) (found bool, resultStatus string, resultCapturedAmount decimal.Decimal, err error) {
	if operationKey == "" {
		return false, "", decimal.Zero, nil
	}
	err = r.db.QueryRow(ctx, `SELECT result_status, result_captured_amount FROM idempotency_operations WHERE hold_id = $1 AND operation_key = $2`,
		holdID, operationKey).Scan(&resultStatus, &resultCapturedAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, "", decimal.Zero, nil
		}
		return false, "", decimal.Zero, fmt.Errorf("failed to look up hold operation: %w", err)
	}
	return true, resultStatus, resultCapturedAmount, nil
}

func nullDecimal(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
