// Package limit implements the Limit Evaluator (C8): checks a candidate
// amount against transaction/daily/monthly/channel limits without
// committing anything, and separately commits spending-window counters
// once the orchestrator has created a hold.
package limit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/apierr"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/database"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/idgen"
)

// ProductLimitSet holds the third-tier fallback limits for a product code.
type ProductLimitSet struct {
	TransactionLimit decimal.Decimal
	DailyLimit       decimal.Decimal
	MonthlyLimit     decimal.Decimal
}

// Config carries the configured defaults and channel adjustments the
// evaluator applies. It is passed in rather than read globally so the
// evaluator stays a pure function of its inputs.
type Config struct {
	DefaultTransactionLimit decimal.Decimal
	DefaultDailyLimit       decimal.Decimal
	DefaultMonthlyLimit     decimal.Decimal

	// ChannelMultipliers scale the effective transaction/daily limit.
	// Channels absent default to 1.0.
	ChannelMultipliers map[domain.Channel]decimal.Decimal

	// ChannelCaps are absolute per-channel caps applied in addition to
	// the multiplier-adjusted transaction limit (ATM daily, CONTACTLESS
	// per-txn, E_COMMERCE online).
	ChannelCaps map[domain.Channel]decimal.Decimal

	ProductLimits map[string]ProductLimitSet
}

func (c *Config) multiplierFor(channel domain.Channel) decimal.Decimal {
	if m, ok := c.ChannelMultipliers[channel]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// Evaluator checks candidate amounts against resolved limits and commits
// spending-window deltas on approval/reversal.
type Evaluator struct {
	cfg        Config
	windowRepo *database.SpendingWindowRepository
}

func New(cfg Config, windowRepo *database.SpendingWindowRepository) *Evaluator {
	return &Evaluator{cfg: cfg, windowRepo: windowRepo}
}

// WithTx returns an Evaluator whose window repository is bound to tx, so
// UpdateSpendingCounters' writes participate in the caller's transaction.
func (e *Evaluator) WithTx(tx pgx.Tx) *Evaluator {
	return &Evaluator{cfg: e.cfg, windowRepo: e.windowRepo.WithTx(tx)}
}

// Snapshot is the non-committing result of Check, recorded on the decision
// for audit.
type Snapshot struct {
	domain.LimitsSnapshot
	DailyWindowID   int64
	MonthlyWindowID int64
}

// resolveLimits applies the effective-limit resolution order: (1) active
// non-expired per-card override, (2) card-level limit (identical to the
// override in this model; kept as a distinct step name for parity with the
// spec's resolution order), (3) product-code limit, (4) configured default.
func (e *Evaluator) resolveLimits(card *domain.CardDetails, now time.Time) (txn, daily, monthly decimal.Decimal) {
	txn, daily, monthly = e.cfg.DefaultTransactionLimit, e.cfg.DefaultDailyLimit, e.cfg.DefaultMonthlyLimit

	if pl, ok := e.cfg.ProductLimits[card.ProductCode]; ok {
		if !pl.TransactionLimit.IsZero() {
			txn = pl.TransactionLimit
		}
		if !pl.DailyLimit.IsZero() {
			daily = pl.DailyLimit
		}
		if !pl.MonthlyLimit.IsZero() {
			monthly = pl.MonthlyLimit
		}
	}

	overrideActive := card.LimitOverrideExpiresAt == nil || card.LimitOverrideExpiresAt.After(now)
	if overrideActive {
		if card.TransactionLimitOverride != nil {
			txn = *card.TransactionLimitOverride
		}
		if card.DailyLimitOverride != nil {
			daily = *card.DailyLimitOverride
		}
		if card.MonthlyLimitOverride != nil {
			monthly = *card.MonthlyLimitOverride
		}
	}
	return txn, daily, monthly
}

// Check validates req.Amount against the effective, channel-adjusted
// limits in strict order, materializing the daily/monthly windows as a
// side effect of the lookup (but not mutating their spentAmount). The
// returned approvedAmount is req.Amount unless a channel cap reduces it
// (see PARTIAL below); it is always <= req.Amount.
//
// A channel cap breach (ATM daily / CONTACTLESS per-txn / E_COMMERCE
// online) does not decline outright: it silently caps approvedAmount to
// the channel cap, letting the orchestrator emit PARTIAL instead of
// DECLINED, provided the capped amount still clears the daily/monthly
// checks below. Transaction/daily/monthly limit breaches remain outright
// declines.
func (e *Evaluator) Check(ctx context.Context, req *domain.AuthorizationRequest, card *domain.CardDetails) (*Snapshot, decimal.Decimal, error) {
	now := req.Timestamp
	baseTxnLimit, dailyLimit, monthlyLimit := e.resolveLimits(card, now)

	multiplier := e.cfg.multiplierFor(req.Channel)
	effectiveTxnLimit := baseTxnLimit.Mul(multiplier)
	effectiveDailyLimit := dailyLimit.Mul(multiplier)

	if req.Amount.GreaterThan(effectiveTxnLimit) {
		return nil, decimal.Zero, apierr.New(apierr.KindBusinessDecline, domain.ReasonExceedsTransactionLimit,
			fmt.Sprintf("amount %s exceeds transaction limit %s", req.Amount, effectiveTxnLimit))
	}

	approvedAmount := req.Amount
	channelCap := decimal.Zero
	if cap, ok := e.cfg.ChannelCaps[req.Channel]; ok {
		channelCap = cap
		if req.Amount.GreaterThan(cap) {
			approvedAmount = cap
		}
	}

	dailyWindow, err := e.materializeWindow(ctx, card.CardID, domain.WindowDaily, req, effectiveDailyLimit)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if dailyWindow.SpentAmount.Add(approvedAmount).GreaterThan(effectiveDailyLimit) {
		return nil, decimal.Zero, apierr.New(apierr.KindBusinessDecline, domain.ReasonExceedsDailyLimit,
			fmt.Sprintf("daily spend %s + amount %s exceeds daily limit %s", dailyWindow.SpentAmount, approvedAmount, effectiveDailyLimit))
	}

	monthlyWindow, err := e.materializeWindow(ctx, card.CardID, domain.WindowMonthly, req, monthlyLimit)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if monthlyWindow.SpentAmount.Add(approvedAmount).GreaterThan(monthlyLimit) {
		return nil, decimal.Zero, apierr.New(apierr.KindBusinessDecline, domain.ReasonExceedsMonthlyLimit,
			fmt.Sprintf("monthly spend %s + amount %s exceeds monthly limit %s", monthlyWindow.SpentAmount, approvedAmount, monthlyLimit))
	}

	return &Snapshot{
		LimitsSnapshot: domain.LimitsSnapshot{
			TransactionLimit: effectiveTxnLimit,
			DailyLimit:       effectiveDailyLimit,
			MonthlyLimit:     monthlyLimit,
			ChannelCap:       channelCap,
			DailySpent:       dailyWindow.SpentAmount,
			MonthlySpent:     monthlyWindow.SpentAmount,
		},
		DailyWindowID:   dailyWindow.ID,
		MonthlyWindowID: monthlyWindow.ID,
	}, approvedAmount, nil
}

// ResolveWindows materializes the daily/monthly windows for req/card the
// same way Check does, but never evaluates the breach conditions. It is
// used by reversal, where the windows already carry the approval being
// reversed and re-running Check's caps against that already-inflated
// spentAmount would spuriously fail a reversal sitting at/near a limit.
func (e *Evaluator) ResolveWindows(ctx context.Context, req *domain.AuthorizationRequest, card *domain.CardDetails) (*Snapshot, error) {
	now := req.Timestamp
	_, dailyLimit, monthlyLimit := e.resolveLimits(card, now)
	multiplier := e.cfg.multiplierFor(req.Channel)
	effectiveDailyLimit := dailyLimit.Mul(multiplier)

	dailyWindow, err := e.materializeWindow(ctx, card.CardID, domain.WindowDaily, req, effectiveDailyLimit)
	if err != nil {
		return nil, err
	}
	monthlyWindow, err := e.materializeWindow(ctx, card.CardID, domain.WindowMonthly, req, monthlyLimit)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		LimitsSnapshot: domain.LimitsSnapshot{
			DailyLimit:   effectiveDailyLimit,
			MonthlyLimit: monthlyLimit,
			DailySpent:   dailyWindow.SpentAmount,
			MonthlySpent: monthlyWindow.SpentAmount,
		},
		DailyWindowID:   dailyWindow.ID,
		MonthlyWindowID: monthlyWindow.ID,
	}, nil
}

func (e *Evaluator) materializeWindow(ctx context.Context, cardID int64, windowType domain.WindowType, req *domain.AuthorizationRequest, limitAmount decimal.Decimal) (*domain.SpendingWindow, error) {
	w := &domain.SpendingWindow{CardID: cardID, WindowType: windowType, LimitAmount: limitAmount}
	if windowType == domain.WindowDaily {
		d := time.Date(req.Timestamp.Year(), req.Timestamp.Month(), req.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
		w.WindowDate = &d
	} else {
		w.WindowMonth = int(req.Timestamp.Month())
		w.WindowYear = req.Timestamp.Year()
	}

	result, err := e.windowRepo.GetOrCreate(ctx, idgen.NewID(), w)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to materialize spending window", err)
	}
	return result, nil
}

// UpdateSpendingCounters commits delta (the approved amount on approval,
// which a channel cap may have reduced below req.Amount; negated on
// reversal) to both the daily and monthly windows identified by the
// snapshot returned from Check. Idempotency with respect to requestId is
// guaranteed structurally by the orchestrator: a window delta is only ever
// applied once per decision, because a decision transitions at most once
// from none->APPROVED (creating the delta) and at most once from
// APPROVED->DECLINED via reversal (creating the inverse).
func (e *Evaluator) UpdateSpendingCounters(ctx context.Context, snap *Snapshot, delta decimal.Decimal, at time.Time) error {
	if err := e.applyWithRetry(ctx, snap.DailyWindowID, delta, at); err != nil {
		return err
	}
	if err := e.applyWithRetry(ctx, snap.MonthlyWindowID, delta, at); err != nil {
		return err
	}
	return nil
}

// applyWithRetry retries the optimistic-concurrency update a bounded
// number of times against concurrent writers touching the same window.
func (e *Evaluator) applyWithRetry(ctx context.Context, windowID int64, delta decimal.Decimal, at time.Time) error {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		w, err := e.windowRepo.GetByID(ctx, windowID)
		if err != nil {
			return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to read spending window", err)
		}
		err = e.windowRepo.ApplyDelta(ctx, windowID, w.Version, delta, at)
		if err == nil {
			return nil
		}
		if err == database.ErrWindowVersionConflict {
			continue
		}
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to apply spending delta", err)
	}
	return apierr.New(apierr.KindInternal, domain.ReasonSystemError, "exceeded retry budget applying spending delta")
}
