package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

var (
	// ErrDecisionNotFound is returned when a decision is not found.
	ErrDecisionNotFound = errors.New("authorization decision not found")
	// ErrDecisionExists is returned when a decision already exists for a
	// requestId (the one-decision-per-request invariant).
	ErrDecisionExists = errors.New("authorization decision already recorded for this request")
)

// DecisionRepository handles persistence for AuthorizationDecision.
type DecisionRepository struct {
	db Querier
}

func NewDecisionRepository(db *DB) *DecisionRepository {
	return &DecisionRepository{db: db.pool}
}

// WithTx returns a DecisionRepository bound to tx instead of the pool, so
// its writes participate in the caller's transaction.
func (r *DecisionRepository) WithTx(tx pgx.Tx) *DecisionRepository {
	return &DecisionRepository{db: tx}
}

// Create inserts a new decision. Returns ErrDecisionExists if requestId
// already has a decision.
func (r *DecisionRepository) Create(ctx context.Context, d *domain.AuthorizationDecision) error {
	limitsJSON, err := json.Marshal(d.LimitsSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal limits snapshot: %w", err)
	}
	balanceJSON, err := json.Marshal(d.BalanceSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal balance snapshot: %w", err)
	}
	pathJSON, err := json.Marshal(d.DecisionPath)
	if err != nil {
		return fmt.Errorf("failed to marshal decision path: %w", err)
	}

	query := `INSERT INTO authorization_decisions (
		decision_id, request_id, decision, reason_code, reason_message, approved_amount,
		currency, authorization_code, risk_score, hold_id, limits_snapshot, balance_snapshot,
		decision_path, timestamp, expires_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err = r.db.Exec(ctx, query,
		d.DecisionID, d.RequestID, string(d.Decision), string(d.ReasonCode), d.ReasonMessage,
		d.ApprovedAmount, d.Currency, d.AuthorizationCode, d.RiskScore, d.HoldID,
		limitsJSON, balanceJSON, pathJSON, d.Timestamp, d.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDecisionExists
		}
		return fmt.Errorf("failed to create authorization decision: %w", err)
	}
	return nil
}

// GetByRequestID retrieves the (unique) decision for a request.
func (r *DecisionRepository) GetByRequestID(ctx context.Context, requestID int64) (*domain.AuthorizationDecision, error) {
	return r.scanOne(ctx, `SELECT
		decision_id, request_id, decision, reason_code, reason_message, approved_amount,
		currency, authorization_code, risk_score, hold_id, limits_snapshot, balance_snapshot,
		decision_path, timestamp, expires_at
	FROM authorization_decisions WHERE request_id = $1`, requestID)
}

// GetByID retrieves a decision by its DecisionID.
func (r *DecisionRepository) GetByID(ctx context.Context, decisionID int64) (*domain.AuthorizationDecision, error) {
	return r.scanOne(ctx, `SELECT
		decision_id, request_id, decision, reason_code, reason_message, approved_amount,
		currency, authorization_code, risk_score, hold_id, limits_snapshot, balance_snapshot,
		decision_path, timestamp, expires_at
	FROM authorization_decisions WHERE decision_id = $1`, decisionID)
}

func (r *DecisionRepository) scanOne(ctx context.Context, query string, arg int64) (*domain.AuthorizationDecision, error) {
	var d domain.AuthorizationDecision
	var decisionStr, reasonStr string
	var limitsJSON, balanceJSON, pathJSON []byte

	err := r.db.QueryRow(ctx, query, arg).Scan(
		&d.DecisionID, &d.RequestID, &decisionStr, &reasonStr, &d.ReasonMessage, &d.ApprovedAmount,
		&d.Currency, &d.AuthorizationCode, &d.RiskScore, &d.HoldID, &limitsJSON, &balanceJSON,
		&pathJSON, &d.Timestamp, &d.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDecisionNotFound
		}
		return nil, fmt.Errorf("failed to get authorization decision: %w", err)
	}
	d.Decision = domain.DecisionOutcome(decisionStr)
	d.ReasonCode = domain.ReasonCode(reasonStr)
	if err := json.Unmarshal(limitsJSON, &d.LimitsSnapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal limits snapshot: %w", err)
	}
	if err := json.Unmarshal(balanceJSON, &d.BalanceSnapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balance snapshot: %w", err)
	}
	if err := json.Unmarshal(pathJSON, &d.DecisionPath); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision path: %w", err)
	}
	return &d, nil
}

// UpdateApproval rewrites a CHALLENGE decision into its post-challenge
// APPROVED outcome, including the hold/amount/snapshot fields that only
// become known once the challenge is resolved and a hold is reserved.
// persistAndPublish's original CHALLENGE row left these columns at their
// zero values, so this is a full rewrite rather than the narrower
// UpdateOutcome below.
func (r *DecisionRepository) UpdateApproval(ctx context.Context, d *domain.AuthorizationDecision) error {
	limitsJSON, err := json.Marshal(d.LimitsSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal limits snapshot: %w", err)
	}
	balanceJSON, err := json.Marshal(d.BalanceSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal balance snapshot: %w", err)
	}
	pathJSON, err := json.Marshal(d.DecisionPath)
	if err != nil {
		return fmt.Errorf("failed to marshal decision path: %w", err)
	}

	query := `UPDATE authorization_decisions
		SET decision = $2, reason_code = $3, reason_message = $4, approved_amount = $5,
			authorization_code = $6, hold_id = $7, limits_snapshot = $8, balance_snapshot = $9,
			decision_path = $10, expires_at = $11
		WHERE decision_id = $1`

	commandTag, err := r.db.Exec(ctx, query,
		d.DecisionID, string(d.Decision), string(d.ReasonCode), d.ReasonMessage, d.ApprovedAmount,
		d.AuthorizationCode, d.HoldID, limitsJSON, balanceJSON, pathJSON, d.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update decision approval: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrDecisionNotFound
	}
	return nil
}

// UpdateOutcome transitions a decision's outcome and reason (challenge
// completion, or reversal of an approval). The row is rewritten in place;
// decisionPath should already include the new step before calling this.
// hold_id is cleared when the new outcome is neither APPROVED nor PARTIAL,
// as chk_authorization_decisions_hold requires.
func (r *DecisionRepository) UpdateOutcome(ctx context.Context, decisionID int64, outcome domain.DecisionOutcome, reason domain.ReasonCode, reasonMessage string, decisionPath []string) error {
	pathJSON, err := json.Marshal(decisionPath)
	if err != nil {
		return fmt.Errorf("failed to marshal decision path: %w", err)
	}

	query := `UPDATE authorization_decisions
		SET decision = $2, reason_code = $3, reason_message = $4, decision_path = $5,
			hold_id = CASE WHEN $2 IN ('APPROVED', 'PARTIAL') THEN hold_id END
		WHERE decision_id = $1`

	commandTag, err := r.db.Exec(ctx, query, decisionID, string(outcome), string(reason), reasonMessage, pathJSON)
	if err != nil {
		return fmt.Errorf("failed to update decision outcome: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrDecisionNotFound
	}
	return nil
}
