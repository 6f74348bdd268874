package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/apierr"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/externals"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
)

type fakeCardDirectory struct {
	byPANHash map[string]*domain.CardDetails
	byToken   map[string]*domain.CardDetails
}

func (f *fakeCardDirectory) ResolveByPANHash(ctx context.Context, panHash string) (*domain.CardDetails, error) {
	if c, ok := f.byPANHash[panHash]; ok {
		return c, nil
	}
	return nil, externals.ErrNotFound
}

func (f *fakeCardDirectory) ResolveByToken(ctx context.Context, token string) (*domain.CardDetails, error) {
	if c, ok := f.byToken[token]; ok {
		return c, nil
	}
	return nil, externals.ErrNotFound
}

func activeCard() *domain.CardDetails {
	return &domain.CardDetails{
		CardID:     1,
		AccountID:  100,
		Status:     "ACTIVE",
		ExpiryDate: "12/30",
	}
}

func TestValidate_NoIdentifier(t *testing.T) {
	v := New(&fakeCardDirectory{}, clock.RealClock{})
	_, err := v.Validate(context.Background(), &domain.AuthorizationRequest{})
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, ae.Kind)
}

func TestValidate_ResolvesByPANHash(t *testing.T) {
	fd := &fakeCardDirectory{byPANHash: map[string]*domain.CardDetails{"hash1": activeCard()}}
	v := New(fd, clock.RealClock{})
	card, err := v.Validate(context.Background(), &domain.AuthorizationRequest{PANHash: "hash1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), card.CardID)
}

func TestValidate_ResolvesByToken_WhenNoPANHash(t *testing.T) {
	fd := &fakeCardDirectory{byToken: map[string]*domain.CardDetails{"tok1": activeCard()}}
	v := New(fd, clock.RealClock{})
	card, err := v.Validate(context.Background(), &domain.AuthorizationRequest{Token: "tok1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), card.CardID)
}

func TestValidate_CardNotFound(t *testing.T) {
	fd := &fakeCardDirectory{}
	v := New(fd, clock.RealClock{})
	_, err := v.Validate(context.Background(), &domain.AuthorizationRequest{PANHash: "missing"})
	require.Error(t, err)
	ae, _ := apierr.As(err)
	assert.Equal(t, apierr.KindNotFound, ae.Kind)
}

func TestValidate_CardStatuses(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		wantKind   apierr.Kind
		wantReason domain.ReasonCode
	}{
		{"expired", "EXPIRED", apierr.KindBusinessDecline, domain.ReasonExpiredCard},
		{"lost", "LOST", apierr.KindBusinessDecline, domain.ReasonCardLostStolen},
		{"stolen", "STOLEN", apierr.KindBusinessDecline, domain.ReasonCardLostStolen},
		{"blocked", "BLOCKED", apierr.KindBusinessDecline, domain.ReasonCardNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := activeCard()
			card.Status = tt.status
			fd := &fakeCardDirectory{byPANHash: map[string]*domain.CardDetails{"h": card}}
			v := New(fd, clock.RealClock{})
			_, err := v.Validate(context.Background(), &domain.AuthorizationRequest{PANHash: "h"})
			require.Error(t, err)
			ae, _ := apierr.As(err)
			assert.Equal(t, tt.wantKind, ae.Kind)
			assert.Equal(t, tt.wantReason, ae.ReasonCode)
		})
	}
}

func TestValidate_ExpiredByDate(t *testing.T) {
	card := activeCard()
	card.ExpiryDate = "01/20" // long past
	fd := &fakeCardDirectory{byPANHash: map[string]*domain.CardDetails{"h": card}}
	v := New(fd, clock.RealClock{})
	_, err := v.Validate(context.Background(), &domain.AuthorizationRequest{PANHash: "h"})
	require.Error(t, err)
	ae, _ := apierr.As(err)
	assert.Equal(t, domain.ReasonExpiredCard, ae.ReasonCode)
}

func TestValidate_MalformedExpiryDate(t *testing.T) {
	card := activeCard()
	card.ExpiryDate = "not-a-date"
	fd := &fakeCardDirectory{byPANHash: map[string]*domain.CardDetails{"h": card}}
	v := New(fd, clock.RealClock{})
	_, err := v.Validate(context.Background(), &domain.AuthorizationRequest{PANHash: "h"})
	require.Error(t, err)
	ae, _ := apierr.As(err)
	assert.Equal(t, apierr.KindInternal, ae.Kind)
}
