package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthorizationRequest is the as-received authorization intent. It is
// created on intake and never mutated except to flip Processed once a
// terminal decision has been persisted for it.
type AuthorizationRequest struct {
	RequestID       int64           `json:"requestId" db:"request_id"`
	MaskedPAN       string          `json:"maskedPan" db:"masked_pan"`
	PANHash         string          `json:"panHash,omitempty" db:"pan_hash"`
	Token           string          `json:"token,omitempty" db:"token"`
	ExpiryDate      string          `json:"expiryDate" db:"expiry_date"`
	MerchantID      string          `json:"merchantId" db:"merchant_id"`
	MerchantName    string          `json:"merchantName" db:"merchant_name"`
	Channel         Channel         `json:"channel" db:"channel"`
	MCC             string          `json:"mcc" db:"mcc"`
	CountryCode     string          `json:"countryCode" db:"country_code"`
	TransactionType TransactionType `json:"transactionType" db:"transaction_type"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	Cryptogram      string          `json:"cryptogram,omitempty" db:"cryptogram"`
	PINData         string          `json:"pinData,omitempty" db:"pin_data"`
	ThreeDSData     string          `json:"threeDsData,omitempty" db:"three_ds_data"`
	Processed       bool            `json:"processed" db:"processed"`
	ProcessedAt     *time.Time      `json:"processedAt,omitempty" db:"processed_at"`
}

// HasIdentifier reports whether the request carries enough to resolve a
// card: a pan hash or a token.
func (r *AuthorizationRequest) HasIdentifier() bool {
	return r.PANHash != "" || r.Token != ""
}

// LimitsSnapshot is the effective-limit resolution recorded against a
// decision for audit purposes.
type LimitsSnapshot struct {
	TransactionLimit decimal.Decimal `json:"transactionLimit"`
	DailyLimit       decimal.Decimal `json:"dailyLimit"`
	MonthlyLimit     decimal.Decimal `json:"monthlyLimit"`
	ChannelCap       decimal.Decimal `json:"channelCap,omitempty"`
	DailySpent       decimal.Decimal `json:"dailySpent"`
	MonthlySpent     decimal.Decimal `json:"monthlySpent"`
}

// BalanceSnapshot is a value object returned by the ledger describing
// available balance before/after and any FX conversion applied. It is
// carried on the decision but never persisted independently.
type BalanceSnapshot struct {
	AvailableBefore decimal.Decimal `json:"availableBefore"`
	AvailableAfter  decimal.Decimal `json:"availableAfter"`
	LedgerBalance   decimal.Decimal `json:"ledgerBalance"`
	TotalOnHold     decimal.Decimal `json:"totalOnHold"`
	OriginalAmount  decimal.Decimal `json:"originalAmount,omitempty"`
	OriginalCurrency string         `json:"originalCurrency,omitempty"`
	ExchangeRate    decimal.Decimal `json:"exchangeRate,omitempty"`
}

// AuthorizationDecision is the binding outcome of an authorization request.
// Exactly one exists per RequestID.
type AuthorizationDecision struct {
	DecisionID        int64           `json:"decisionId" db:"decision_id"`
	RequestID         int64           `json:"requestId" db:"request_id"`
	Decision          DecisionOutcome `json:"decision" db:"decision"`
	ReasonCode        ReasonCode      `json:"reasonCode" db:"reason_code"`
	ReasonMessage     string          `json:"reasonMessage" db:"reason_message"`
	ApprovedAmount    decimal.Decimal `json:"approvedAmount" db:"approved_amount"`
	Currency          string          `json:"currency" db:"currency"`
	AuthorizationCode string          `json:"authorizationCode,omitempty" db:"authorization_code"`
	RiskScore         *int            `json:"riskScore,omitempty" db:"risk_score"`
	HoldID            *int64          `json:"holdId,omitempty" db:"hold_id"`
	LimitsSnapshot    LimitsSnapshot  `json:"limitsSnapshot" db:"limits_snapshot"`
	BalanceSnapshot   BalanceSnapshot `json:"balanceSnapshot" db:"balance_snapshot"`
	DecisionPath      []string        `json:"decisionPath" db:"decision_path"`
	Timestamp         time.Time       `json:"timestamp" db:"timestamp"`
	ExpiresAt         *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
}

// IsApprovalLike reports whether the decision carries a reserved hold.
func (d *AuthorizationDecision) IsApprovalLike() bool {
	return d.Decision == DecisionApproved || d.Decision == DecisionPartial
}

// AppendPath appends a step to the decision's audit trail.
func (d *AuthorizationDecision) AppendPath(step string) {
	d.DecisionPath = append(d.DecisionPath, step)
}

// AuthorizationHold represents funds reserved against an account pending
// capture, release, or expiry.
type AuthorizationHold struct {
	HoldID            int64           `json:"holdId" db:"hold_id"`
	RequestID         int64           `json:"requestId" db:"request_id"`
	DecisionID        int64           `json:"decisionId" db:"decision_id"`
	AccountID         int64           `json:"accountId" db:"account_id"`
	AccountSpaceID    *int64          `json:"accountSpaceId,omitempty" db:"account_space_id"`
	CardID            int64           `json:"cardId" db:"card_id"`
	MerchantID        string          `json:"merchantId" db:"merchant_id"`
	MerchantName      string          `json:"merchantName" db:"merchant_name"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Currency          string          `json:"currency" db:"currency"`
	OriginalAmount    decimal.Decimal `json:"originalAmount,omitempty" db:"original_amount"`
	OriginalCurrency  string          `json:"originalCurrency,omitempty" db:"original_currency"`
	ExchangeRate      decimal.Decimal `json:"exchangeRate,omitempty" db:"exchange_rate"`
	AuthorizationCode string          `json:"authorizationCode" db:"authorization_code"`
	Status            HoldStatus      `json:"status" db:"status"`
	CapturedAmount    decimal.Decimal `json:"capturedAmount" db:"captured_amount"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
	CapturedAt        *time.Time      `json:"capturedAt,omitempty" db:"captured_at"`
	ExpiresAt         time.Time       `json:"expiresAt" db:"expires_at"`
	Version           int             `json:"-" db:"version"`
}

// IsTerminal reports whether the hold has reached a sink state.
func (h *AuthorizationHold) IsTerminal() bool {
	return h.Status == HoldCaptured || h.Status == HoldReleased || h.Status == HoldExpired
}

// SpendingWindow is an aggregate counter tracking spend for a card over a
// DAILY or MONTHLY period, optionally scoped by channel/country/mcc.
type SpendingWindow struct {
	ID                int64           `json:"id" db:"id"`
	CardID            int64           `json:"cardId" db:"card_id"`
	WindowType        WindowType      `json:"windowType" db:"window_type"`
	WindowDate         *time.Time     `json:"windowDate,omitempty" db:"window_date"`
	WindowMonth        int            `json:"windowMonth,omitempty" db:"window_month"`
	WindowYear         int            `json:"windowYear,omitempty" db:"window_year"`
	Channel            Channel        `json:"channel,omitempty" db:"channel"`
	CountryCode        string         `json:"countryCode,omitempty" db:"country_code"`
	MCC                string         `json:"mcc,omitempty" db:"mcc"`
	LimitAmount        decimal.Decimal `json:"limitAmount" db:"limit_amount"`
	SpentAmount        decimal.Decimal `json:"spentAmount" db:"spent_amount"`
	TransactionCount   int            `json:"transactionCount" db:"transaction_count"`
	LastTransactionTime *time.Time    `json:"lastTransactionTime,omitempty" db:"last_transaction_time"`
	Version            int           `json:"-" db:"version"`
}

// RemainingAmount returns limitAmount - spentAmount, never negative.
func (w *SpendingWindow) RemainingAmount() decimal.Decimal {
	rem := w.LimitAmount.Sub(w.SpentAmount)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// CardDetails is the set of attributes the external card directory (C1)
// returns for a resolved card.
type CardDetails struct {
	CardID                 int64
	AccountID              int64
	AccountSpaceID         *int64
	AccountCurrency        string // ISO-4217 currency the backing account settles in
	Status                 string // ACTIVE, BLOCKED, EXPIRED, LOST, STOLEN
	IssuerCountry          string
	ProductCode            string
	ExpiryDate             string
	ThreeDSEnrollmentStatus string
	TransactionLimitOverride *decimal.Decimal
	DailyLimitOverride       *decimal.Decimal
	MonthlyLimitOverride     *decimal.Decimal
	LimitOverrideExpiresAt   *time.Time
}

// Is3DSEnrolled reports whether the card is enrolled in 3DS.
func (c *CardDetails) Is3DSEnrolled() bool {
	return c.ThreeDSEnrollmentStatus == "Y"
}
