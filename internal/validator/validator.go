// Package validator implements the Card Validator (C7): given a request it
// resolves the card via the card directory and checks it is usable for
// authorization. It has no side effects and mutates nothing.
package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/apierr"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/externals"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
)

// Validator resolves and validates a card for a given request. It depends
// only on the card directory and an injectable clock, so expiry checks
// are deterministic in tests.
type Validator struct {
	cardDirectory externals.CardDirectory
	clock         clock.Clock
}

func New(cardDirectory externals.CardDirectory, clk clock.Clock) *Validator {
	return &Validator{cardDirectory: cardDirectory, clock: clk}
}

// Validate resolves the card referenced by req (panHash preferred, else
// token) and checks it is eligible to authorize. Returns a typed apierr on
// any failure.
func (v *Validator) Validate(ctx context.Context, req *domain.AuthorizationRequest) (*domain.CardDetails, error) {
	if !req.HasIdentifier() {
		return nil, apierr.New(apierr.KindValidation, domain.ReasonFormatError, "request carries neither panHash nor token")
	}

	var card *domain.CardDetails
	var err error
	if req.PANHash != "" {
		card, err = v.cardDirectory.ResolveByPANHash(ctx, req.PANHash)
	} else {
		card, err = v.cardDirectory.ResolveByToken(ctx, req.Token)
	}
	if err != nil {
		if err == externals.ErrNotFound {
			return nil, apierr.New(apierr.KindNotFound, domain.ReasonInvalidCard, "card not found")
		}
		return nil, apierr.Wrap(apierr.KindTransientUpstream, domain.ReasonIssuerUnavailable, "card directory unavailable", err)
	}

	switch card.Status {
	case "ACTIVE":
		// fallthrough to expiry check
	case "EXPIRED":
		return nil, apierr.New(apierr.KindBusinessDecline, domain.ReasonExpiredCard, "card is expired")
	case "LOST", "STOLEN":
		return nil, apierr.New(apierr.KindBusinessDecline, domain.ReasonCardLostStolen, fmt.Sprintf("card reported %s", card.Status))
	default:
		return nil, apierr.New(apierr.KindBusinessDecline, domain.ReasonCardNotActive, fmt.Sprintf("card is not active (status=%s)", card.Status))
	}

	expiry, err := time.Parse("01/06", card.ExpiryDate)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, domain.ReasonSystemError, "malformed card expiry date", err)
	}
	// Card is valid through the end of its expiry month.
	expiryEnd := time.Date(expiry.Year(), expiry.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	if !expiryEnd.After(v.clock.Now().UTC()) {
		return nil, apierr.New(apierr.KindBusinessDecline, domain.ReasonExpiredCard, "card is expired")
	}

	return card, nil
}

// Is3DSEnrolled reports whether the card is 3DS-enrolled, used by the risk
// engine's ecommerce_without_3ds rule.
func Is3DSEnrolled(card *domain.CardDetails) bool {
	return card.Is3DSEnrolled()
}
