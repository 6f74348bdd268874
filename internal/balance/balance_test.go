package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/apierr"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

type fakeLedger struct {
	balance *domain.BalanceSnapshot
	err     error
}

func (f *fakeLedger) GetBalance(ctx context.Context, accountID int64, accountSpaceID *int64, currency string) (*domain.BalanceSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap := *f.balance
	return &snap, nil
}
func (f *fakeLedger) Reserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency, reference string) error {
	return nil
}
func (f *fakeLedger) ReleaseReserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency, reference string) error {
	return nil
}
func (f *fakeLedger) Post(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency, reference string) error {
	return nil
}

type fakeFX struct {
	rate decimal.Decimal
	err  error
}

func (f *fakeFX) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.rate, nil
}

func TestCheck_SameCurrency_NoFXCall(t *testing.T) {
	ledger := &fakeLedger{balance: &domain.BalanceSnapshot{AvailableBefore: decimal.NewFromInt(200)}}
	fx := &fakeFX{err: errors.New("should not be called")}
	c := New(ledger, fx)

	req := &domain.AuthorizationRequest{Amount: decimal.NewFromInt(100), Currency: "USD"}
	card := &domain.CardDetails{AccountID: 1}

	snap, converted, err := c.Check(context.Background(), req, card, "USD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(converted))
	assert.True(t, decimal.NewFromInt(100).Equal(snap.AvailableAfter))
}

func TestCheck_ConvertsCurrency(t *testing.T) {
	ledger := &fakeLedger{balance: &domain.BalanceSnapshot{AvailableBefore: decimal.NewFromInt(200)}}
	fx := &fakeFX{rate: decimal.RequireFromString("0.9")}
	c := New(ledger, fx)

	req := &domain.AuthorizationRequest{Amount: decimal.NewFromInt(100), Currency: "EUR"}
	card := &domain.CardDetails{AccountID: 1}

	snap, converted, err := c.Check(context.Background(), req, card, "USD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(90).Equal(converted))
	assert.True(t, decimal.NewFromInt(100).Equal(snap.OriginalAmount))
	assert.Equal(t, "EUR", snap.OriginalCurrency)
}

func TestCheck_InsufficientFunds(t *testing.T) {
	ledger := &fakeLedger{balance: &domain.BalanceSnapshot{AvailableBefore: decimal.NewFromInt(50)}}
	fx := &fakeFX{}
	c := New(ledger, fx)

	req := &domain.AuthorizationRequest{Amount: decimal.NewFromInt(100), Currency: "USD"}
	card := &domain.CardDetails{AccountID: 1}

	_, _, err := c.Check(context.Background(), req, card, "USD")
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindBusinessDecline, ae.Kind)
	assert.Equal(t, domain.ReasonInsufficientFunds, ae.ReasonCode)
}

func TestCheck_LedgerUnavailable(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("connection refused")}
	fx := &fakeFX{}
	c := New(ledger, fx)

	req := &domain.AuthorizationRequest{Amount: decimal.NewFromInt(100), Currency: "USD"}
	card := &domain.CardDetails{AccountID: 1}

	_, _, err := c.Check(context.Background(), req, card, "USD")
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindTransientUpstream, ae.Kind)
}

func TestCheck_FXProviderUnavailable(t *testing.T) {
	ledger := &fakeLedger{balance: &domain.BalanceSnapshot{AvailableBefore: decimal.NewFromInt(200)}}
	fx := &fakeFX{err: errors.New("fx down")}
	c := New(ledger, fx)

	req := &domain.AuthorizationRequest{Amount: decimal.NewFromInt(100), Currency: "EUR"}
	card := &domain.CardDetails{AccountID: 1}

	_, _, err := c.Check(context.Background(), req, card, "USD")
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindTransientUpstream, ae.Kind)
}
