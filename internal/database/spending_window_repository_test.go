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
)

func TestSpendingWindowRepository_GetOrCreate_MaterializesOnce(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewSpendingWindowRepository(db)
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scope := &domain.SpendingWindow{
		CardID:      42,
		WindowType:  domain.WindowDaily,
		WindowDate:  &day,
		LimitAmount: decimal.NewFromInt(5000),
	}

	first, err := repo.GetOrCreate(ctx, 2001, scope)
	require.NoError(t, err)
	assert.True(t, first.SpentAmount.IsZero())
	assert.Equal(t, 1, first.Version)

	second, err := repo.GetOrCreate(ctx, 2002, scope)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "GetOrCreate must be idempotent for the same scope")
}

func TestSpendingWindowRepository_ApplyDelta_AccumulatesAndClampsAtZero(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewSpendingWindowRepository(db)
	ctx := context.Background()

	month := &domain.SpendingWindow{
		CardID:      43,
		WindowType:  domain.WindowMonthly,
		WindowMonth: 3,
		WindowYear:  2026,
		LimitAmount: decimal.NewFromInt(20000),
	}
	w, err := repo.GetOrCreate(ctx, 2003, month)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.ApplyDelta(ctx, w.ID, w.Version, decimal.NewFromInt(100), now))

	updated, err := repo.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(updated.SpentAmount))
	assert.Equal(t, 1, updated.TransactionCount)
	assert.Equal(t, 2, updated.Version)

	// Reversal beyond what was spent clamps at zero rather than going negative.
	require.NoError(t, repo.ApplyDelta(ctx, w.ID, updated.Version, decimal.NewFromInt(-500), now))
	clamped, err := repo.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, clamped.SpentAmount.IsZero())
}

func TestSpendingWindowRepository_ApplyDelta_StaleVersionConflicts(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewSpendingWindowRepository(db)
	ctx := context.Background()

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	w, err := repo.GetOrCreate(ctx, 2004, &domain.SpendingWindow{
		CardID:      44,
		WindowType:  domain.WindowDaily,
		WindowDate:  &day,
		LimitAmount: decimal.NewFromInt(5000),
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.ApplyDelta(ctx, w.ID, w.Version, decimal.NewFromInt(50), now))

	err = repo.ApplyDelta(ctx, w.ID, w.Version, decimal.NewFromInt(50), now)
	assert.ErrorIs(t, err, ErrWindowVersionConflict)
}

func TestSpendingWindowRepository_ApplyDelta_NotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewSpendingWindowRepository(db)
	err := repo.ApplyDelta(context.Background(), 99999999, 1, decimal.NewFromInt(10), time.Now().UTC())
	assert.ErrorIs(t, err, ErrWindowNotFound)
}
