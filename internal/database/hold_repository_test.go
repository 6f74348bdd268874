//go:build integration

package database

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/logger"
)

func init() {
	_ = logger.Init("development")
}

// seedRequestAndDecision inserts the backing authorization_requests and
// authorization_decisions rows a hold's foreign keys require, and returns a
// ready-to-persist hold referencing them.
func seedRequestAndDecision(t *testing.T, db *DB, holdID int64) *domain.AuthorizationHold {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	requestID := holdID + 1_000_000
	decisionID := holdID + 2_000_000

	req := &domain.AuthorizationRequest{
		RequestID:       requestID,
		MaskedPAN:       "411111******1234",
		PANHash:         "hash-for-hold-tests",
		ExpiryDate:      "12/30",
		MerchantID:      "merchant-1",
		MerchantName:    "Coffee Shop",
		Channel:         domain.ChannelPOS,
		TransactionType: domain.TxnPurchase,
		Amount:          decimal.NewFromInt(25),
		Currency:        "USD",
		Timestamp:       now,
	}
	require.NoError(t, NewRequestRepository(db).Create(ctx, req, ""))

	decision := &domain.AuthorizationDecision{
		DecisionID:     decisionID,
		RequestID:      requestID,
		Decision:       domain.DecisionApproved,
		ReasonCode:     domain.ReasonApprovedTransaction,
		ApprovedAmount: decimal.NewFromInt(25),
		Currency:       "USD",
		HoldID:         &holdID,
		DecisionPath:   []string{"seeded"},
		Timestamp:      now,
	}
	require.NoError(t, NewDecisionRepository(db).Create(ctx, decision))

	return &domain.AuthorizationHold{
		HoldID:            holdID,
		RequestID:         requestID,
		DecisionID:        decisionID,
		AccountID:         500,
		CardID:            600,
		MerchantID:        "merchant-1",
		MerchantName:      "Coffee Shop",
		Amount:            decimal.NewFromInt(25),
		Currency:          "USD",
		AuthorizationCode: "123456",
		Status:            domain.HoldActive,
		CapturedAmount:    decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(7 * 24 * time.Hour),
		Version:           1,
	}
}

func TestHoldRepository_CreateAndGetByID(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewHoldRepository(db)
	ctx := context.Background()

	h := seedRequestAndDecision(t, db, 1001)
	require.NoError(t, repo.Create(ctx, h))

	got, err := repo.GetByID(ctx, h.HoldID)
	require.NoError(t, err)
	assert.Equal(t, h.HoldID, got.HoldID)
	assert.Equal(t, domain.HoldActive, got.Status)
	assert.Equal(t, 1, got.Version)
	assert.True(t, h.Amount.Equal(got.Amount))
}

func TestHoldRepository_GetByID_NotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewHoldRepository(db)
	_, err := repo.GetByID(context.Background(), 999999)
	assert.ErrorIs(t, err, ErrHoldNotFound)
}

func TestHoldRepository_UpdateTransition_CaptureFullAmount(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewHoldRepository(db)
	ctx := context.Background()

	h := seedRequestAndDecision(t, db, 1002)
	require.NoError(t, repo.Create(ctx, h))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.UpdateTransition(ctx, h.HoldID, h.Version, domain.HoldCaptured, h.Amount, &now, now))

	got, err := repo.GetByID(ctx, h.HoldID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldCaptured, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.True(t, h.Amount.Equal(got.CapturedAmount))
}

func TestHoldRepository_UpdateTransition_StaleVersionConflicts(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewHoldRepository(db)
	ctx := context.Background()

	h := seedRequestAndDecision(t, db, 1003)
	require.NoError(t, repo.Create(ctx, h))

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateTransition(ctx, h.HoldID, h.Version, domain.HoldReleased, decimal.Zero, nil, now))

	// Reusing the original (now stale) version must fail.
	err := repo.UpdateTransition(ctx, h.HoldID, h.Version, domain.HoldReleased, decimal.Zero, nil, now)
	assert.ErrorIs(t, err, ErrHoldVersionConflict)
}

func TestHoldRepository_ListExpiredActive(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewHoldRepository(db)
	ctx := context.Background()

	expired := seedRequestAndDecision(t, db, 1004)
	expired.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, expired))

	stillActive := seedRequestAndDecision(t, db, 1005)
	stillActive.ExpiresAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, stillActive))

	results, err := repo.ListExpiredActive(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)

	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.HoldID)
	}
	assert.Contains(t, ids, expired.HoldID)
	assert.NotContains(t, ids, stillActive.HoldID)
}

func TestHoldRepository_RecordAndFindOperation_Idempotent(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewHoldRepository(db)
	ctx := context.Background()

	h := seedRequestAndDecision(t, db, 1006)
	require.NoError(t, repo.Create(ctx, h))

	found, _, _, err := repo.FindOperation(ctx, h.HoldID, "op-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.RecordOperation(ctx, h.HoldID, "op-1", "capture", string(domain.HoldCaptured), h.Amount))

	found, status, amount, err := repo.FindOperation(ctx, h.HoldID, "op-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, string(domain.HoldCaptured), status)
	assert.True(t, h.Amount.Equal(amount))

	// Replaying RecordOperation with the same key is a no-op, not an error.
	require.NoError(t, repo.RecordOperation(ctx, h.HoldID, "op-1", "capture", string(domain.HoldCaptured), h.Amount))
}
