// Package orchestrator implements the Authorization Orchestrator (C12):
// the single entry point that drives validate → limit → risk → balance →
// hold, forms the binding decision, and owns reversal and challenge
// completion. Every mutating method is serialized per requestId through a
// Redis advisory lock, mirroring the Hold Manager's per-holdId locking.
package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/apierr"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/balance"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/database"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/events"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/hold"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/idgen"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/limit"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/risk"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/validator"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/cache"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/logger"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/queue"
)

const (
	requestLockPrefix = "request:lock:"
	requestLockTTL    = 15 * time.Second

	challengeTTL = 15 * time.Minute
	approvalTTL  = 7 * 24 * time.Hour
)

// AccountResolver bridges a validated card to the account/currency the
// Balance Checker and Hold Manager operate against. In this module the
// card directory response already carries accountId/accountSpaceId;
// AccountCurrency is assumed to be the request currency unless overridden
// — a real deployment would resolve this from the account service.
type AccountResolver func(card *domain.CardDetails) (accountCurrency string)

// Orchestrator wires the pipeline components together.
type Orchestrator struct {
	db        *database.DB
	requests  *database.RequestRepository
	decisions *database.DecisionRepository
	holdRepo  *database.HoldRepository

	validator *validator.Validator
	limits    *limit.Evaluator
	riskCfg   risk.Config
	balances  *balance.Checker
	holds     *hold.Manager

	resolveAccountCurrency AccountResolver
	holdTTL                time.Duration
	clock                  clock.Clock
	queue                  *queue.StreamQueue
}

type Deps struct {
	DB                     *database.DB
	Requests               *database.RequestRepository
	Decisions              *database.DecisionRepository
	HoldRepo               *database.HoldRepository
	Validator              *validator.Validator
	Limits                 *limit.Evaluator
	RiskConfig             risk.Config
	Balances               *balance.Checker
	Holds                  *hold.Manager
	ResolveAccountCurrency AccountResolver
	HoldTTL                time.Duration
	Clock                  clock.Clock
	Queue                  *queue.StreamQueue
}

func New(d Deps) *Orchestrator {
	resolve := d.ResolveAccountCurrency
	if resolve == nil {
		resolve = func(card *domain.CardDetails) string { return "" }
	}
	return &Orchestrator{
		db:                     d.DB,
		requests:               d.Requests,
		decisions:              d.Decisions,
		holdRepo:               d.HoldRepo,
		validator:              d.Validator,
		limits:                 d.Limits,
		riskCfg:                d.RiskConfig,
		balances:                d.Balances,
		holds:                  d.Holds,
		resolveAccountCurrency: resolve,
		holdTTL:                d.HoldTTL,
		clock:                  d.Clock,
		queue:                  d.Queue,
	}
}

// Authorize drives the full pipeline for a freshly-received request and
// returns its binding decision. req.RequestID must already be set by the
// caller (derived from the idempotency key via idgen.FoldIdempotencyKey,
// or freshly generated via idgen.NewID if none was supplied).
func (o *Orchestrator) Authorize(ctx context.Context, req *domain.AuthorizationRequest, idempotencyKey string) (*domain.AuthorizationDecision, error) {
	return o.withRequestLock(ctx, req.RequestID, func() (*domain.AuthorizationDecision, error) {
		if existing, err := o.decisions.GetByRequestID(ctx, req.RequestID); err == nil {
			return existing, nil
		} else if err != database.ErrDecisionNotFound {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to check existing decision", err)
		}

		if _, err := o.requests.GetByID(ctx, req.RequestID); err == database.ErrRequestNotFound {
			if err := o.requests.Create(ctx, req, idempotencyKey); err != nil && err != database.ErrIdempotencyKeyExists {
				return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist request", err)
			}
		} else if err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to check existing request", err)
		}

		decision := &domain.AuthorizationDecision{
			DecisionID: idgen.NewID(),
			RequestID:  req.RequestID,
			Currency:   req.Currency,
			Timestamp:  o.clock.Now(),
		}

		card, err := o.validator.Validate(ctx, req)
		if err != nil {
			return o.declineFrom(ctx, decision, err, "card_validation")
		}
		decision.AppendPath("card_validation:ok")

		limitSnap, approvedAmount, err := o.limits.Check(ctx, req, card)
		if err != nil {
			return o.declineFrom(ctx, decision, err, "limit_evaluation")
		}
		decision.AppendPath("limit_evaluation:ok")
		decision.LimitsSnapshot = limitSnap.LimitsSnapshot

		riskResult := risk.Score(o.riskCfg, req, card)
		decision.RiskScore = &riskResult.Score
		decision.AppendPath(fmt.Sprintf("risk_assessment:%s(score=%d)", riskResult.Recommendation, riskResult.Score))
		if riskResult.Recommendation == risk.RecommendDecline {
			return o.decline(ctx, decision, domain.ReasonSuspectedFraud, "risk engine recommended decline")
		}
		if riskResult.Recommendation == risk.RecommendChallenge {
			decision.Decision = domain.DecisionChallenge
			decision.ReasonCode = domain.ReasonAdditionalAuthenticationRequired
			decision.ReasonMessage = "risk engine recommended step-up authentication"
			expires := o.clock.Now().Add(challengeTTL)
			decision.ExpiresAt = &expires
			return o.persistAndPublish(ctx, decision)
		}

		accountCurrency := o.resolveAccountCurrency(card)
		if accountCurrency == "" {
			accountCurrency = req.Currency
		}

		// Check/convert exactly the amount a channel cap may already have
		// reduced req.Amount to, not the raw requested amount — the hold
		// must reserve what's actually being approved, in account currency.
		balanceReq := *req
		balanceReq.Amount = approvedAmount
		balanceSnap, holdAmount, err := o.balances.Check(ctx, &balanceReq, card, accountCurrency)
		if err != nil {
			return o.declineFrom(ctx, decision, err, "balance_check")
		}
		decision.AppendPath("balance_check:ok")
		decision.BalanceSnapshot = *balanceSnap

		h, err := o.holds.Reserve(ctx, hold.CreateParams{
			RequestID:         req.RequestID,
			DecisionID:        decision.DecisionID,
			AccountID:         card.AccountID,
			AccountSpaceID:    card.AccountSpaceID,
			CardID:            card.CardID,
			MerchantID:        req.MerchantID,
			MerchantName:      req.MerchantName,
			Amount:            holdAmount,
			Currency:          accountCurrency,
			OriginalAmount:    balanceSnap.OriginalAmount,
			OriginalCurrency:  balanceSnap.OriginalCurrency,
			ExchangeRate:      balanceSnap.ExchangeRate,
			AuthorizationCode: generateAuthCode(req.RequestID),
			HoldTTL:           o.holdTTL,
		})
		if err != nil {
			return o.declineFrom(ctx, decision, err, "hold_reservation")
		}
		decision.AppendPath("funds_reserved")

		decision.HoldID = &h.HoldID
		decision.ApprovedAmount = approvedAmount
		decision.AuthorizationCode = h.AuthorizationCode
		expires := o.clock.Now().Add(approvalTTL)
		decision.ExpiresAt = &expires
		if approvedAmount.LessThan(req.Amount) {
			decision.Decision = domain.DecisionPartial
			decision.ReasonCode = domain.ReasonApprovedPartial
			decision.ReasonMessage = "approved for a reduced amount under a channel cap"
		} else {
			decision.Decision = domain.DecisionApproved
			decision.ReasonCode = domain.ReasonApprovedTransaction
			decision.ReasonMessage = "approved"
		}

		if err := o.commitApproval(ctx, decision, h, limitSnap, approvedAmount); err != nil {
			if relErr := o.holds.CompensateReserve(ctx, h); relErr != nil {
				logger.Error("failed to compensate ledger reserve after failed approval commit",
					zap.Int64("requestId", req.RequestID), zap.Error(relErr))
			}
			return nil, err
		}
		decision.AppendPath("hold_creation:ok")
		decision.AppendPath("spending_counters:committed")

		if err := o.requests.MarkProcessed(ctx, decision.RequestID, o.clock.Now()); err != nil {
			logger.Warn("failed to mark request processed", zap.Int64("requestId", decision.RequestID), zap.Error(err))
		}
		o.publishDecision(ctx, decision)
		return decision, nil
	})
}

// ReverseAuthorization transitions an APPROVED/PARTIAL decision to
// DECLINED with reason AUTHORIZATION_REVERSED, releases the associated
// hold (idempotent), and reverses spending counters.
func (o *Orchestrator) ReverseAuthorization(ctx context.Context, requestID int64, reason string) (*domain.AuthorizationDecision, error) {
	return o.withRequestLock(ctx, requestID, func() (*domain.AuthorizationDecision, error) {
		d, err := o.decisions.GetByRequestID(ctx, requestID)
		if err != nil {
			return nil, translateDecisionErr(err)
		}
		if !d.IsApprovalLike() {
			return nil, apierr.New(apierr.KindInvalidState, domain.ReasonSystemError, "decision is not APPROVED or PARTIAL")
		}

		if d.HoldID != nil {
			if _, err := o.holds.Release(ctx, *d.HoldID, fmt.Sprintf("reverse:%d", requestID)); err != nil {
				return nil, err
			}
		}

		if err := o.reverseSpendingCounters(ctx, requestID, d.ApprovedAmount); err != nil {
			return nil, err
		}

		d.AppendPath("reversal:" + reason)
		if err := o.decisions.UpdateOutcome(ctx, d.DecisionID, domain.DecisionDeclined, domain.ReasonAuthorizationReversed, reason, d.DecisionPath); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist reversal", err)
		}
		d.Decision = domain.DecisionDeclined
		d.ReasonCode = domain.ReasonAuthorizationReversed
		d.ReasonMessage = reason
		d.HoldID = nil

		o.publishDecision(ctx, d)
		return d, nil
	})
}

// reverseSpendingCounters re-derives the window ids the original approval
// committed to and applies the negated delta, using the same
// (cardId, windowType, period) identity limit.Evaluator.Check would
// materialize for this request. It resolves those windows via
// ResolveWindows rather than Check, since Check's daily/monthly breach
// checks would run against spentAmount that still includes the approval
// being reversed — a card sitting at or near its daily limit would then
// spuriously fail its own reversal, leaving the counters permanently
// inflated (L4).
func (o *Orchestrator) reverseSpendingCounters(ctx context.Context, requestID int64, approvedAmount decimal.Decimal) error {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to load original request for reversal", err)
	}
	card, err := o.validator.Validate(ctx, req)
	if err != nil {
		// The card may have since changed state (e.g. blocked); reversal
		// of spending counters only needs its identity, not its current
		// eligibility, but the window delta still needs a cardId — surface
		// the error since it cannot proceed without one.
		return apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "failed to re-resolve card for counter reversal", err)
	}
	snap, err := o.limits.ResolveWindows(ctx, req, card)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to re-resolve spending windows for reversal", err)
	}
	return o.limits.UpdateSpendingCounters(ctx, snap, approvedAmount.Neg(), o.clock.Now())
}

// ChallengeComplete resolves a CHALLENGE decision. On "SUCCESS" it
// re-validates the card and re-runs the limit check (risk is not
// re-scored), then continues with the balance check, hold reservation and
// commit; any other result
// declines with SECURITY_VIOLATION. A completion submitted after the
// challenge's expiresAt always fails.
func (o *Orchestrator) ChallengeComplete(ctx context.Context, requestID int64, result string) (*domain.AuthorizationDecision, error) {
	return o.withRequestLock(ctx, requestID, func() (*domain.AuthorizationDecision, error) {
		d, err := o.decisions.GetByRequestID(ctx, requestID)
		if err != nil {
			return nil, translateDecisionErr(err)
		}
		if d.Decision != domain.DecisionChallenge {
			return nil, apierr.New(apierr.KindInvalidState, domain.ReasonSystemError, "decision is not CHALLENGE")
		}
		if d.ExpiresAt != nil && o.clock.Now().After(*d.ExpiresAt) {
			return nil, apierr.New(apierr.KindInvalidState, domain.ReasonSystemError, "challenge has expired")
		}

		if result != "SUCCESS" {
			d.AppendPath("challenge_complete:" + result)
			if err := o.decisions.UpdateOutcome(ctx, d.DecisionID, domain.DecisionDeclined, domain.ReasonSecurityViolation, "challenge not satisfied", d.DecisionPath); err != nil {
				return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist challenge decline", err)
			}
			d.Decision = domain.DecisionDeclined
			d.ReasonCode = domain.ReasonSecurityViolation
			o.publishDecision(ctx, d)
			return d, nil
		}

		req, err := o.requests.GetByID(ctx, requestID)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to load request", err)
		}
		card, err := o.validator.Validate(ctx, req)
		if err != nil {
			return nil, err
		}
		limitSnap, approvedAmount, err := o.limits.Check(ctx, req, card)
		if err != nil {
			return nil, err
		}

		accountCurrency := o.resolveAccountCurrency(card)
		if accountCurrency == "" {
			accountCurrency = req.Currency
		}

		balanceReq := *req
		balanceReq.Amount = approvedAmount
		balanceSnap, holdAmount, err := o.balances.Check(ctx, &balanceReq, card, accountCurrency)
		if err != nil {
			return nil, err
		}

		h, err := o.holds.Reserve(ctx, hold.CreateParams{
			RequestID:         requestID,
			DecisionID:        d.DecisionID,
			AccountID:         card.AccountID,
			AccountSpaceID:    card.AccountSpaceID,
			CardID:            card.CardID,
			MerchantID:        req.MerchantID,
			MerchantName:      req.MerchantName,
			Amount:            holdAmount,
			Currency:          accountCurrency,
			OriginalAmount:    balanceSnap.OriginalAmount,
			OriginalCurrency:  balanceSnap.OriginalCurrency,
			ExchangeRate:      balanceSnap.ExchangeRate,
			AuthorizationCode: generateAuthCode(requestID),
			HoldTTL:           o.holdTTL,
		})
		if err != nil {
			return nil, err
		}

		d.AppendPath("challenge_complete:SUCCESS")
		d.HoldID = &h.HoldID
		d.ApprovedAmount = approvedAmount
		d.AuthorizationCode = h.AuthorizationCode
		d.LimitsSnapshot = limitSnap.LimitsSnapshot
		d.BalanceSnapshot = *balanceSnap
		d.Decision = domain.DecisionApproved
		d.ReasonCode = domain.ReasonApprovedTransaction
		d.ReasonMessage = "approved after challenge"
		expires := o.clock.Now().Add(approvalTTL)
		d.ExpiresAt = &expires

		if err := o.commitChallengeApproval(ctx, d, h, limitSnap, approvedAmount); err != nil {
			if relErr := o.holds.CompensateReserve(ctx, h); relErr != nil {
				logger.Error("failed to compensate ledger reserve after failed challenge approval commit",
					zap.Int64("requestId", requestID), zap.Error(relErr))
			}
			return nil, err
		}
		o.publishDecision(ctx, d)
		return d, nil
	})
}

// declineFrom maps a typed apierr from a pipeline stage into a DECLINED
// decision, appending the stage name and error reason to the audit trail.
func (o *Orchestrator) declineFrom(ctx context.Context, decision *domain.AuthorizationDecision, err error, stage string) (*domain.AuthorizationDecision, error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		return nil, err
	}
	decision.AppendPath(fmt.Sprintf("%s:failed(%s)", stage, apiErr.ReasonCode))
	if apiErr.Kind == apierr.KindTransientUpstream || apiErr.Kind == apierr.KindInternal {
		return nil, err
	}
	return o.decline(ctx, decision, apiErr.ReasonCode, apiErr.Message)
}

func (o *Orchestrator) decline(ctx context.Context, decision *domain.AuthorizationDecision, reason domain.ReasonCode, message string) (*domain.AuthorizationDecision, error) {
	decision.Decision = domain.DecisionDeclined
	decision.ReasonCode = reason
	decision.ReasonMessage = message
	decision.ApprovedAmount = decimal.Zero
	return o.persistAndPublish(ctx, decision)
}

// commitApproval persists the decision (with HoldID already set), the
// reserved hold, and the spending-counter deltas as a single database
// transaction. authorization_holds.decision_id is an immediate foreign
// key into authorization_decisions, so the decision row must be written
// first; committing all three writes together means a mid-commit failure
// never leaves a reserved hold with no decision to ever reverse it — the
// caller compensates the ledger reserve itself if this returns an error,
// since the external reserve call cannot be rolled back by this transaction.
func (o *Orchestrator) commitApproval(ctx context.Context, decision *domain.AuthorizationDecision, h *domain.AuthorizationHold, limitSnap *limit.Snapshot, delta decimal.Decimal) error {
	tx, err := o.db.BeginTx(ctx)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to begin approval transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := o.decisions.WithTx(tx).Create(ctx, decision); err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist decision", err)
	}
	if err := o.holds.PersistWith(ctx, o.holdRepo.WithTx(tx), h); err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist hold", err)
	}
	if err := o.limits.WithTx(tx).UpdateSpendingCounters(ctx, limitSnap, delta, o.clock.Now()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to commit approval transaction", err)
	}
	return nil
}

// commitChallengeApproval is commitApproval's counterpart for a CHALLENGE
// decision resolving to APPROVED: the decision row already exists, so it is
// rewritten via UpdateApproval rather than inserted, but it still must
// commit atomically with the hold and spending-counter writes for the same
// FK-ordering and all-or-nothing reasons.
func (o *Orchestrator) commitChallengeApproval(ctx context.Context, decision *domain.AuthorizationDecision, h *domain.AuthorizationHold, limitSnap *limit.Snapshot, delta decimal.Decimal) error {
	tx, err := o.db.BeginTx(ctx)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to begin approval transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := o.decisions.WithTx(tx).UpdateApproval(ctx, decision); err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist challenge approval", err)
	}
	if err := o.holds.PersistWith(ctx, o.holdRepo.WithTx(tx), h); err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist hold", err)
	}
	if err := o.limits.WithTx(tx).UpdateSpendingCounters(ctx, limitSnap, delta, o.clock.Now()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to commit approval transaction", err)
	}
	return nil
}

func (o *Orchestrator) persistAndPublish(ctx context.Context, decision *domain.AuthorizationDecision) (*domain.AuthorizationDecision, error) {
	if err := o.decisions.Create(ctx, decision); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to persist decision", err)
	}
	if err := o.requests.MarkProcessed(ctx, decision.RequestID, o.clock.Now()); err != nil {
		logger.Warn("failed to mark request processed", zap.Int64("requestId", decision.RequestID), zap.Error(err))
	}
	o.publishDecision(ctx, decision)
	return decision, nil
}

func (o *Orchestrator) publishDecision(ctx context.Context, d *domain.AuthorizationDecision) {
	if o.queue == nil {
		return
	}
	msg := events.DecisionRecorded{
		DecisionID:     d.DecisionID,
		RequestID:      d.RequestID,
		Decision:       d.Decision,
		ReasonCode:     d.ReasonCode,
		ApprovedAmount: d.ApprovedAmount,
		Currency:       d.Currency,
		HoldID:         d.HoldID,
		Timestamp:      d.Timestamp,
	}
	data, err := events.Marshal(msg)
	if err != nil {
		logger.Warn("failed to marshal decision event", zap.Error(err))
		return
	}
	if _, err := o.queue.Publish(ctx, events.StreamDecisions, data); err != nil {
		logger.Warn("failed to publish decision event", zap.Int64("decisionId", d.DecisionID), zap.Error(err))
	}
}

// withRequestLock serializes mutating operations on requestID behind a
// Redis advisory lock. A request arriving while another holds the lock is
// turned away with TRANSIENT_UPSTREAM rather than waiting for the lock
// holder's decision and returning it: the two concurrent submissions of
// the same requestId still converge on one binding decision (the loser
// never writes one of its own), but the loser's caller sees an error on
// its first attempt and must retry to observe it. That's fine as long as
// the HTTP layer above this package retries TRANSIENT_UPSTREAM.
func (o *Orchestrator) withRequestLock(ctx context.Context, requestID int64, fn func() (*domain.AuthorizationDecision, error)) (*domain.AuthorizationDecision, error) {
	lockKey := fmt.Sprintf("%s%d", requestLockPrefix, requestID)
	acquired, err := cache.SetNX(ctx, lockKey, "locked", requestLockTTL)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to acquire request lock", err)
	}
	if !acquired {
		return nil, apierr.New(apierr.KindTransientUpstream, domain.ReasonSystemError, "request is locked by a concurrent operation")
	}
	defer cache.Delete(ctx, lockKey)

	return fn()
}

func translateDecisionErr(err error) error {
	if err == database.ErrDecisionNotFound {
		return apierr.New(apierr.KindNotFound, domain.ReasonSystemError, "decision not found")
	}
	return apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "failed to load decision", err)
}

// generateAuthCode derives a deterministic 6-digit authorization code from
// the requestId, avoiding a dependency on crypto/rand for a display-only
// field with no security role (the hold/decision ids are the real
// linkage keys).
func generateAuthCode(requestID int64) string {
	n := new(big.Int).SetInt64(requestID)
	mod := big.NewInt(1000000)
	n.Mod(n, mod)
	if n.Sign() < 0 {
		n.Neg(n)
	}
	return fmt.Sprintf("%06d", n.Int64())
}
