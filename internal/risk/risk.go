// Package risk implements the Risk Engine (C9): a pure, stateless,
// deterministic rule-based scorer over a request and its resolved card
// details.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

// Recommendation is the risk engine's verdict.
type Recommendation string

const (
	RecommendApprove  Recommendation = "APPROVE"
	RecommendChallenge Recommendation = "CHALLENGE"
	RecommendDecline  Recommendation = "DECLINE"
)

// Config carries the configurable thresholds and high-risk sets. Passed as
// a parameter rather than read globally so scoring stays a pure function.
type Config struct {
	ChallengeThreshold int // default 70
	DeclineThreshold   int // default 90

	HighValueThresholdUSD   decimal.Decimal
	HighValueThresholdEUR   decimal.Decimal
	HighValueThresholdGBP   decimal.Decimal
	HighValueThresholdOther decimal.Decimal

	HighRiskCountries map[string]bool
	HighRiskMCCs      map[string]bool
}

// Result is the scoring outcome.
type Result struct {
	Score          int
	TriggeredRules []string
	Recommendation Recommendation
}

const maxScore = 100

// Score evaluates every rule against (req, card) and returns the capped
// score with its recommendation.
func Score(cfg Config, req *domain.AuthorizationRequest, card *domain.CardDetails) Result {
	score := 0
	var triggered []string

	if highValueTransaction(cfg, req) {
		score += 20
		triggered = append(triggered, "high_value_transaction")
	}
	if roundAmount(req) {
		score += 5
		triggered = append(triggered, "round_amount")
	}
	if unusualCountry(req, card) {
		score += 30
		triggered = append(triggered, "unusual_country")
	}
	if unusualMerchantCategory(cfg, req) {
		score += 15
		triggered = append(triggered, "unusual_merchant_category")
	}
	if unusualTime(req) {
		score += 10
		triggered = append(triggered, "unusual_time")
	}
	if ecommerceWithout3DS(req, card) {
		score += 25
		triggered = append(triggered, "ecommerce_without_3ds")
	}

	if score > maxScore {
		score = maxScore
	}

	return Result{
		Score:          score,
		TriggeredRules: triggered,
		Recommendation: recommend(cfg, score),
	}
}

func recommend(cfg Config, score int) Recommendation {
	if score >= cfg.DeclineThreshold {
		return RecommendDecline
	}
	if score >= cfg.ChallengeThreshold {
		return RecommendChallenge
	}
	return RecommendApprove
}

func highValueTransaction(cfg Config, req *domain.AuthorizationRequest) bool {
	threshold := cfg.HighValueThresholdOther
	switch req.Currency {
	case "USD":
		threshold = cfg.HighValueThresholdUSD
	case "EUR":
		threshold = cfg.HighValueThresholdEUR
	case "GBP":
		threshold = cfg.HighValueThresholdGBP
	}
	return req.Amount.GreaterThanOrEqual(threshold)
}

func roundAmount(req *domain.AuthorizationRequest) bool {
	if req.Amount.LessThan(decimal.NewFromInt(500)) {
		return false
	}
	hundred := decimal.NewFromInt(100)
	return req.Amount.Mod(hundred).IsZero()
}

func unusualCountry(req *domain.AuthorizationRequest, card *domain.CardDetails) bool {
	return req.CountryCode != "" && card.IssuerCountry != "" && req.CountryCode != card.IssuerCountry
}

func unusualMerchantCategory(cfg Config, req *domain.AuthorizationRequest) bool {
	return cfg.HighRiskMCCs[req.MCC]
}

func unusualTime(req *domain.AuthorizationRequest) bool {
	hour := req.Timestamp.UTC().Hour()
	return hour >= 1 && hour <= 5
}

func ecommerceWithout3DS(req *domain.AuthorizationRequest, card *domain.CardDetails) bool {
	if req.Channel != domain.ChannelECommerce {
		return false
	}
	return !card.Is3DSEnrolled() || req.ThreeDSData == ""
}
