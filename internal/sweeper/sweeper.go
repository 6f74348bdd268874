// Package sweeper implements the Expiry Sweeper (C13): a fixed-cadence
// job that finds ACTIVE holds past their expiresAt and drives them
// through the Hold Manager's expire path. Per-hold isolation means one
// hold's failure never aborts the rest of the batch, grounded on the
// teacher's per-message recover-and-continue shape in its fund_card
// worker's consume loop.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/database"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/hold"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/logger"
)

// Sweeper periodically releases expired ACTIVE holds.
type Sweeper struct {
	holdRepo  *database.HoldRepository
	holds     *hold.Manager
	clock     clock.Clock
	batchSize int
}

func New(holdRepo *database.HoldRepository, holds *hold.Manager, clk clock.Clock, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Sweeper{holdRepo: holdRepo, holds: holds, clock: clk, batchSize: batchSize}
}

// Run blocks, ticking every interval until ctx is cancelled. Each tick
// calls Sweep once; a graceful shutdown is a cancelled context, not a
// dedicated stop channel, matching the teacher's worker shutdown shape.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("expiry sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C():
			s.Sweep(ctx)
		}
	}
}

// Sweep processes up to batchSize expired ACTIVE holds. A panic or error
// on one hold is contained and logged; it never aborts the rest of the
// batch.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.holdRepo.ListExpiredActive(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		logger.Error("failed to list expired holds", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	logger.Info("sweeping expired holds", zap.Int("count", len(expired)))
	for _, h := range expired {
		s.sweepOne(ctx, h.HoldID)
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, holdID int64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while sweeping hold", zap.Int64("holdId", holdID), zap.Any("panic", r))
		}
	}()

	if _, err := s.holds.SweepExpired(ctx, holdID); err != nil {
		logger.Error("failed to sweep expired hold", zap.Int64("holdId", holdID), zap.Error(err))
		return
	}
	logger.Info("hold expired", zap.Int64("holdId", holdID))
}
