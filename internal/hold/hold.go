// Package hold implements the Hold Manager (C11): the money state machine
// backing an approved/partial decision. Every operation against a given
// holdId is serialized through a Redis advisory lock so capture, release,
// and expiry on the same hold never interleave.
package hold

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/apierr"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/database"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/externals"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/idgen"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/cache"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
)

const (
	holdLockPrefix = "hold:lock:"
	holdLockTTL    = 10 * time.Second
)

// ErrLockBusy is returned when a concurrent operation already holds the
// per-hold advisory lock.
var ErrLockBusy = fmt.Errorf("hold is locked by a concurrent operation")

// Manager implements create/capture/release/sweepExpired.
type Manager struct {
	holds  *database.HoldRepository
	ledger externals.Ledger
	clock  clock.Clock
}

func New(holds *database.HoldRepository, ledger externals.Ledger, clk clock.Clock) *Manager {
	return &Manager{holds: holds, ledger: ledger, clock: clk}
}

// CreateParams carries everything needed to reserve funds and persist a
// hold for an approved/partial decision.
type CreateParams struct {
	RequestID         int64
	DecisionID        int64
	AccountID         int64
	AccountSpaceID    *int64
	CardID            int64
	MerchantID        string
	MerchantName      string
	Amount            decimal.Decimal
	Currency          string
	OriginalAmount    decimal.Decimal
	OriginalCurrency  string
	ExchangeRate      decimal.Decimal
	AuthorizationCode string
	HoldTTL           time.Duration
}

// Reserve reserves funds against the ledger and builds the ACTIVE hold
// that backs them, without persisting it. Callers that need the hold's
// persistence to commit atomically alongside other writes (the decision
// row, spending counters) should persist the returned hold themselves,
// e.g. via PersistWith against a transaction-bound HoldRepository, and
// call CompensateReserve if that commit fails. If the ledger reports
// insufficient funds, no reserve is made and the whole authorization
// fails with INSUFFICIENT_FUNDS.
func (m *Manager) Reserve(ctx context.Context, p CreateParams) (*domain.AuthorizationHold, error) {
	reference := fmt.Sprintf("hold-create:%d", p.RequestID)
	if err := m.ledger.Reserve(ctx, p.AccountID, p.AccountSpaceID, p.Amount, p.Currency, reference); err != nil {
		return nil, apierr.Wrap(apierr.KindBusinessDecline, domain.ReasonInsufficientFunds, "ledger rejected reserve", err)
	}

	now := m.clock.Now()
	h := &domain.AuthorizationHold{
		HoldID:            idgen.NewID(),
		RequestID:         p.RequestID,
		DecisionID:        p.DecisionID,
		AccountID:         p.AccountID,
		AccountSpaceID:    p.AccountSpaceID,
		CardID:            p.CardID,
		MerchantID:        p.MerchantID,
		MerchantName:      p.MerchantName,
		Amount:            p.Amount,
		Currency:          p.Currency,
		OriginalAmount:    p.OriginalAmount,
		OriginalCurrency:  p.OriginalCurrency,
		ExchangeRate:      p.ExchangeRate,
		AuthorizationCode: p.AuthorizationCode,
		Status:            domain.HoldActive,
		CapturedAmount:    decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         now.Add(p.HoldTTL),
		Version:           1,
	}
	return h, nil
}

// CompensateReserve releases a reserve made by Reserve whose hold was
// never successfully persisted, leaving the ledger as if the reserve had
// never happened.
func (m *Manager) CompensateReserve(ctx context.Context, h *domain.AuthorizationHold) error {
	reference := fmt.Sprintf("hold-create:%d", h.RequestID)
	return m.ledger.ReleaseReserve(ctx, h.AccountID, h.AccountSpaceID, h.Amount, h.Currency, reference+":compensate")
}

// PersistWith writes a reserved-but-not-yet-persisted hold using repo,
// typically a HoldRepository bound to a transaction via WithTx so the
// write commits atomically with the decision and spending-counter rows.
func (m *Manager) PersistWith(ctx context.Context, repo *database.HoldRepository, h *domain.AuthorizationHold) error {
	return repo.Create(ctx, h)
}

// Create reserves funds against the ledger and persists a new ACTIVE hold
// in one step. Used by callers that don't need the hold's persistence to
// be atomic with other writes; the orchestrator's authorization pipeline
// uses Reserve/PersistWith/CompensateReserve directly instead.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*domain.AuthorizationHold, error) {
	h, err := m.Reserve(ctx, p)
	if err != nil {
		return nil, err
	}

	if err := m.holds.Create(ctx, h); err != nil {
		// Compensate: the reserve succeeded but the hold could not be
		// persisted. Release back what was just reserved.
		if relErr := m.CompensateReserve(ctx, h); relErr != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError,
				fmt.Sprintf("failed to persist hold and failed to compensate reserve: %v", relErr), err)
		}
		return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist hold", err)
	}

	return h, nil
}

// Capture captures captureAmount against an ACTIVE hold. Full capture
// (captureAmount == amount) posts to the ledger with no release step;
// partial capture posts captureAmount and releases the remainder.
// operationKey makes repeated calls idempotent: a second call with the
// same key against an already-terminal hold returns the prior result.
func (m *Manager) Capture(ctx context.Context, holdID int64, captureAmount decimal.Decimal, operationKey string) (*domain.AuthorizationHold, error) {
	return m.withLock(ctx, holdID, func() (*domain.AuthorizationHold, error) {
		if found, status, capturedAmt, err := m.holds.FindOperation(ctx, holdID, operationKey); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to check operation idempotency", err)
		} else if found {
			h, err := m.holds.GetByID(ctx, holdID)
			if err != nil {
				return nil, translateNotFound(err)
			}
			_ = status
			_ = capturedAmt
			return h, nil
		}

		h, err := m.holds.GetByID(ctx, holdID)
		if err != nil {
			return nil, translateNotFound(err)
		}
		if h.Status != domain.HoldActive {
			return nil, apierr.New(apierr.KindInvalidState, domain.ReasonSystemError, "hold is not ACTIVE")
		}
		if captureAmount.LessThanOrEqual(decimal.Zero) || captureAmount.GreaterThan(h.Amount) {
			return nil, apierr.New(apierr.KindValidation, domain.ReasonFormatError, "capture amount out of bounds")
		}

		reference := fmt.Sprintf("hold-capture:%d", holdID)
		if err := m.ledger.Post(ctx, h.AccountID, h.AccountSpaceID, captureAmount, h.Currency, reference); err != nil {
			return nil, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "ledger post failed", err)
		}

		if captureAmount.LessThan(h.Amount) {
			remainder := h.Amount.Sub(captureAmount)
			if err := m.ledger.ReleaseReserve(ctx, h.AccountID, h.AccountSpaceID, remainder, h.Currency, reference+":remainder"); err != nil {
				return nil, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "ledger release failed", err)
			}
		}

		now := m.clock.Now()
		if err := m.holds.UpdateTransition(ctx, holdID, h.Version, domain.HoldCaptured, captureAmount, &now, now); err != nil {
			return nil, translateTransitionErr(err)
		}
		h.Status = domain.HoldCaptured
		h.CapturedAmount = captureAmount
		h.CapturedAt = &now
		h.UpdatedAt = now
		h.Version++

		if err := m.holds.RecordOperation(ctx, holdID, operationKey, "capture", string(domain.HoldCaptured), captureAmount); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to record operation", err)
		}
		return h, nil
	})
}

// Release releases the full reserved amount back to the account and marks
// the hold RELEASED.
func (m *Manager) Release(ctx context.Context, holdID int64, operationKey string) (*domain.AuthorizationHold, error) {
	return m.withLock(ctx, holdID, func() (*domain.AuthorizationHold, error) {
		if found, _, _, err := m.holds.FindOperation(ctx, holdID, operationKey); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to check operation idempotency", err)
		} else if found {
			h, err := m.holds.GetByID(ctx, holdID)
			if err != nil {
				return nil, translateNotFound(err)
			}
			return h, nil
		}

		h, err := m.holds.GetByID(ctx, holdID)
		if err != nil {
			return nil, translateNotFound(err)
		}
		if h.Status != domain.HoldActive {
			// (L3): release after expire is a no-op returning the current row.
			if h.IsTerminal() {
				return h, nil
			}
			return nil, apierr.New(apierr.KindInvalidState, domain.ReasonSystemError, "hold is not ACTIVE")
		}

		reference := fmt.Sprintf("hold-release:%d", holdID)
		if err := m.ledger.ReleaseReserve(ctx, h.AccountID, h.AccountSpaceID, h.Amount, h.Currency, reference); err != nil {
			return nil, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "ledger release failed", err)
		}

		now := m.clock.Now()
		if err := m.holds.UpdateTransition(ctx, holdID, h.Version, domain.HoldReleased, decimal.Zero, nil, now); err != nil {
			return nil, translateTransitionErr(err)
		}
		h.Status = domain.HoldReleased
		h.UpdatedAt = now
		h.Version++

		if err := m.holds.RecordOperation(ctx, holdID, operationKey, "release", string(domain.HoldReleased), decimal.Zero); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to record operation", err)
		}
		return h, nil
	})
}

// SweepExpired releases a single expired ACTIVE hold, transitioning it to
// EXPIRED. Called by the sweeper once per hold; (L3) release after expire
// (and vice versa) is a no-op because both check h.Status == ACTIVE first.
func (m *Manager) SweepExpired(ctx context.Context, holdID int64) (*domain.AuthorizationHold, error) {
	return m.withLock(ctx, holdID, func() (*domain.AuthorizationHold, error) {
		h, err := m.holds.GetByID(ctx, holdID)
		if err != nil {
			return nil, translateNotFound(err)
		}
		if h.Status != domain.HoldActive {
			return h, nil
		}

		reference := fmt.Sprintf("hold-expire:%d", holdID)
		if err := m.ledger.ReleaseReserve(ctx, h.AccountID, h.AccountSpaceID, h.Amount, h.Currency, reference); err != nil {
			return nil, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "ledger release failed", err)
		}

		now := m.clock.Now()
		if err := m.holds.UpdateTransition(ctx, holdID, h.Version, domain.HoldExpired, decimal.Zero, nil, now); err != nil {
			return nil, translateTransitionErr(err)
		}
		h.Status = domain.HoldExpired
		h.UpdatedAt = now
		h.Version++
		return h, nil
	})
}

func (m *Manager) withLock(ctx context.Context, holdID int64, fn func() (*domain.AuthorizationHold, error)) (*domain.AuthorizationHold, error) {
	lockKey := fmt.Sprintf("%s%d", holdLockPrefix, holdID)
	acquired, err := cache.SetNX(ctx, lockKey, "locked", holdLockTTL)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to acquire hold lock", err)
	}
	if !acquired {
		return nil, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonSystemError, "hold lock busy", ErrLockBusy)
	}
	defer cache.Delete(ctx, lockKey)

	return fn()
}

func translateNotFound(err error) error {
	if err == database.ErrHoldNotFound {
		return apierr.New(apierr.KindNotFound, domain.ReasonSystemError, "hold not found")
	}
	return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to load hold", err)
}

func translateTransitionErr(err error) error {
	if err == database.ErrHoldVersionConflict {
		return apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonSystemError, "hold transition conflict, retry", err)
	}
	if err == database.ErrHoldNotFound {
		return apierr.New(apierr.KindNotFound, domain.ReasonSystemError, "hold not found")
	}
	return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to apply hold transition", err)
}
