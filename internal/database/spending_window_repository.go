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
	// ErrWindowNotFound is returned when a spending window is not found.
	ErrWindowNotFound = errors.New("spending window not found")
	// ErrWindowVersionConflict signals a concurrent update won the race;
	// the caller should re-read and retry.
	ErrWindowVersionConflict = errors.New("spending window version conflict")
)

// SpendingWindowRepository handles persistence for SpendingWindow
// aggregate counters.
type SpendingWindowRepository struct {
	db Querier
}

func NewSpendingWindowRepository(db *DB) *SpendingWindowRepository {
	return &SpendingWindowRepository{db: db.pool}
}

// WithTx returns a SpendingWindowRepository bound to tx instead of the
// pool, so its writes participate in the caller's transaction.
func (r *SpendingWindowRepository) WithTx(tx pgx.Tx) *SpendingWindowRepository {
	return &SpendingWindowRepository{db: tx}
}

// GetOrCreate resolves the window for the given scope, materializing it
// lazily with limitAmount if it does not yet exist. The period scope key is
// (cardId, windowType, windowDate|windowMonth+windowYear, channel, countryCode, mcc).
func (r *SpendingWindowRepository) GetOrCreate(ctx context.Context, id int64, w *domain.SpendingWindow) (*domain.SpendingWindow, error) {
	existing, err := r.find(ctx, w)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrWindowNotFound) {
		return nil, err
	}

	query := `INSERT INTO spending_windows (
		id, card_id, window_type, window_date, window_month, window_year,
		channel, country_code, mcc, limit_amount, spent_amount, transaction_count,
		last_transaction_time, version
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,0,NULL,1)
	ON CONFLICT DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		id, w.CardID, string(w.WindowType), w.WindowDate, nullInt(w.WindowMonth), nullInt(w.WindowYear),
		string(w.Channel), w.CountryCode, w.MCC, w.LimitAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize spending window: %w", err)
	}

	return r.find(ctx, w)
}

func (r *SpendingWindowRepository) find(ctx context.Context, w *domain.SpendingWindow) (*domain.SpendingWindow, error) {
	query := `SELECT id, card_id, window_type, window_date, window_month, window_year,
		channel, country_code, mcc, limit_amount, spent_amount, transaction_count,
		last_transaction_time, version
	FROM spending_windows
	WHERE card_id = $1 AND window_type = $2
		AND window_date IS NOT DISTINCT FROM $3
		AND window_month IS NOT DISTINCT FROM $4
		AND window_year IS NOT DISTINCT FROM $5
		AND channel = $6 AND country_code = $7 AND mcc = $8`

	return r.scanOne(ctx, query, w.CardID, string(w.WindowType), w.WindowDate, nullInt(w.WindowMonth), nullInt(w.WindowYear), string(w.Channel), w.CountryCode, w.MCC)
}

// GetByID retrieves a window by its primary key.
func (r *SpendingWindowRepository) GetByID(ctx context.Context, id int64) (*domain.SpendingWindow, error) {
	return r.scanOne(ctx, `SELECT id, card_id, window_type, window_date, window_month, window_year,
		channel, country_code, mcc, limit_amount, spent_amount, transaction_count,
		last_transaction_time, version
	FROM spending_windows WHERE id = $1`, id)
}

func (r *SpendingWindowRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*domain.SpendingWindow, error) {
	var w domain.SpendingWindow
	var windowType, channel string
	var windowMonth, windowYear *int

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&w.ID, &w.CardID, &windowType, &w.WindowDate, &windowMonth, &windowYear,
		&channel, &w.CountryCode, &w.MCC, &w.LimitAmount, &w.SpentAmount, &w.TransactionCount,
		&w.LastTransactionTime, &w.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to get spending window: %w", err)
	}
	w.WindowType = domain.WindowType(windowType)
	w.Channel = domain.Channel(channel)
	if windowMonth != nil {
		w.WindowMonth = *windowMonth
	}
	if windowYear != nil {
		w.WindowYear = *windowYear
	}
	return &w, nil
}

// ApplyDelta adds delta (positive on approval, negative on reversal,
// clamped at zero) to spentAmount under an optimistic-concurrency guard on
// Version. Returns ErrWindowVersionConflict when expectedVersion is stale;
// the caller (Limit Evaluator) re-reads and retries.
func (r *SpendingWindowRepository) ApplyDelta(ctx context.Context, id int64, expectedVersion int, delta decimal.Decimal, at time.Time) error {
	query := `UPDATE spending_windows
		SET spent_amount = GREATEST(spent_amount + $3, 0),
			transaction_count = transaction_count + (CASE WHEN $3 > 0 THEN 1 ELSE 0 END),
			last_transaction_time = $4,
			version = version + 1
		WHERE id = $1 AND version = $2`

	commandTag, err := r.db.Exec(ctx, query, id, expectedVersion, delta, at)
	if err != nil {
		return fmt.Errorf("failed to apply spending delta: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrWindowNotFound) {
			return ErrWindowNotFound
		}
		return ErrWindowVersionConflict
	}
	return nil
}

func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
