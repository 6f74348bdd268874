// Package balance implements the Balance Checker (C10): resolves the
// account balance via the ledger, converts currency if necessary, and
// fails with INSUFFICIENT_FUNDS when the converted amount exceeds
// available balance.
package balance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/apierr"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/externals"
)

// Checker resolves ledger balance and performs FX conversion.
type Checker struct {
	ledger externals.Ledger
	fx     externals.FXProvider
}

func New(ledger externals.Ledger, fx externals.FXProvider) *Checker {
	return &Checker{ledger: ledger, fx: fx}
}

// Check resolves the account's available balance in accountCurrency,
// converts req.Amount into accountCurrency if needed, and fails with
// INSUFFICIENT_FUNDS when the converted amount exceeds the available
// balance. Returns the snapshot to carry on the decision and the
// (possibly converted) amount that will back the hold.
func (c *Checker) Check(ctx context.Context, req *domain.AuthorizationRequest, card *domain.CardDetails, accountCurrency string) (*domain.BalanceSnapshot, decimal.Decimal, error) {
	snapshot, err := c.ledger.GetBalance(ctx, card.AccountID, card.AccountSpaceID, accountCurrency)
	if err != nil {
		return nil, decimal.Zero, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "ledger unavailable", err)
	}

	converted := req.Amount
	if req.Currency != accountCurrency {
		rate, err := c.fx.GetRate(ctx, req.Currency, accountCurrency)
		if err != nil {
			return nil, decimal.Zero, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "fx provider unavailable", err)
		}
		converted = req.Amount.Mul(rate).Round(4)
		snapshot.OriginalAmount = req.Amount
		snapshot.OriginalCurrency = req.Currency
		snapshot.ExchangeRate = rate
	}

	if converted.GreaterThan(snapshot.AvailableBefore) {
		return nil, decimal.Zero, apierr.New(apierr.KindBusinessDecline, domain.ReasonInsufficientFunds,
			"converted amount exceeds available balance")
	}

	snapshot.AvailableAfter = snapshot.AvailableBefore.Sub(converted)
	return snapshot, converted, nil
}
