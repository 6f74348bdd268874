package domain

// Channel identifies the acceptance channel a transaction arrived through.
type Channel string

const (
	ChannelPOS          Channel = "POS"
	ChannelECommerce    Channel = "E_COMMERCE"
	ChannelATM          Channel = "ATM"
	ChannelMobileApp    Channel = "MOBILE_APP"
	ChannelContactless  Channel = "CONTACTLESS"
	ChannelManualEntry  Channel = "MANUAL_ENTRY"
	ChannelRecurring    Channel = "RECURRING"
	ChannelOther        Channel = "OTHER"
)

// TransactionType identifies the kind of card transaction being authorized.
type TransactionType string

const (
	TxnPurchase        TransactionType = "PURCHASE"
	TxnWithdrawal      TransactionType = "WITHDRAWAL"
	TxnBalanceInquiry  TransactionType = "BALANCE_INQUIRY"
	TxnTransfer        TransactionType = "TRANSFER"
	TxnPayment         TransactionType = "PAYMENT"
	TxnRefund          TransactionType = "REFUND"
	TxnPreAuthorization TransactionType = "PRE_AUTHORIZATION"
	TxnCapture         TransactionType = "CAPTURE"
	TxnReversal        TransactionType = "REVERSAL"
	TxnPinChange       TransactionType = "PIN_CHANGE"
)

// DecisionOutcome is the final authorization verdict for a request.
type DecisionOutcome string

const (
	DecisionApproved  DecisionOutcome = "APPROVED"
	DecisionPartial   DecisionOutcome = "PARTIAL"
	DecisionDeclined  DecisionOutcome = "DECLINED"
	DecisionChallenge DecisionOutcome = "CHALLENGE"
)

// HoldStatus is the lifecycle state of a reserved-funds hold.
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldCaptured HoldStatus = "CAPTURED"
	HoldReleased HoldStatus = "RELEASED"
	HoldExpired  HoldStatus = "EXPIRED"
)

// WindowType is the aggregation period of a spending-window counter.
type WindowType string

const (
	WindowDaily   WindowType = "DAILY"
	WindowMonthly WindowType = "MONTHLY"
)

// ReasonCode enumerates the closed set of decision/decline reasons this
// service can produce. Names and numeric codes follow the issuer-style
// reason code table; AUTHORIZATION_REVERSED is a dedicated addition (see
// ReasonNumericCode) rather than overloading DUPLICATE_TRANSACTION.
type ReasonCode string

const (
	ReasonApprovedTransaction              ReasonCode = "APPROVED_TRANSACTION"
	ReasonApprovedWithID                   ReasonCode = "APPROVED_WITH_ID"
	ReasonApprovedPartial                  ReasonCode = "APPROVED_PARTIAL"
	ReasonApprovedVIP                      ReasonCode = "APPROVED_VIP"
	ReasonInvalidCard                      ReasonCode = "INVALID_CARD"
	ReasonExpiredCard                      ReasonCode = "EXPIRED_CARD"
	ReasonCardNotActive                    ReasonCode = "CARD_NOT_ACTIVE"
	ReasonCardRestricted                   ReasonCode = "CARD_RESTRICTED"
	ReasonCardLostStolen                   ReasonCode = "CARD_LOST_STOLEN"
	ReasonExceedsWithdrawalLimit           ReasonCode = "EXCEEDS_WITHDRAWAL_LIMIT"
	ReasonExceedsDailyLimit                ReasonCode = "EXCEEDS_DAILY_LIMIT"
	ReasonExceedsMonthlyLimit              ReasonCode = "EXCEEDS_MONTHLY_LIMIT"
	ReasonExceedsTransactionLimit          ReasonCode = "EXCEEDS_TRANSACTION_LIMIT"
	ReasonInsufficientFunds                ReasonCode = "INSUFFICIENT_FUNDS"
	ReasonAccountClosed                    ReasonCode = "ACCOUNT_CLOSED"
	ReasonSuspectedFraud                   ReasonCode = "SUSPECTED_FRAUD"
	ReasonSecurityViolation                ReasonCode = "SECURITY_VIOLATION"
	ReasonInvalidPIN                       ReasonCode = "INVALID_PIN"
	ReasonExceedsPINRetries                ReasonCode = "EXCEEDS_PIN_RETRIES"
	ReasonVerificationRequired             ReasonCode = "VERIFICATION_REQUIRED"
	ReasonAdditionalAuthenticationRequired ReasonCode = "ADDITIONAL_AUTHENTICATION_REQUIRED"
	ReasonSystemError                      ReasonCode = "SYSTEM_ERROR"
	ReasonFormatError                      ReasonCode = "FORMAT_ERROR"
	ReasonDuplicateTransaction             ReasonCode = "DUPLICATE_TRANSACTION"
	ReasonIssuerUnavailable                ReasonCode = "ISSUER_UNAVAILABLE"

	// ReasonAuthorizationReversed is a dedicated code for a reversed
	// approval, kept distinct from ReasonDuplicateTransaction per the
	// resolved design decision (see DESIGN.md).
	ReasonAuthorizationReversed ReasonCode = "AUTHORIZATION_REVERSED"
)

// ReasonNumericCode maps each ReasonCode to its two-digit issuer-style
// numeric code, carried in external-facing representations.
var ReasonNumericCode = map[ReasonCode]string{
	ReasonApprovedTransaction:              "00",
	ReasonApprovedWithID:                   "08",
	ReasonApprovedPartial:                  "10",
	ReasonApprovedVIP:                      "11",
	ReasonInvalidCard:                      "14",
	ReasonExpiredCard:                      "54",
	ReasonCardNotActive:                    "62",
	ReasonCardRestricted:                   "36",
	ReasonCardLostStolen:                   "41",
	ReasonExceedsWithdrawalLimit:           "61",
	ReasonExceedsDailyLimit:                "65",
	ReasonExceedsMonthlyLimit:              "66",
	ReasonExceedsTransactionLimit:          "13",
	ReasonInsufficientFunds:                "51",
	ReasonAccountClosed:                    "64",
	ReasonSuspectedFraud:                   "59",
	ReasonSecurityViolation:                "63",
	ReasonInvalidPIN:                       "55",
	ReasonExceedsPINRetries:                "75",
	ReasonVerificationRequired:             "01",
	ReasonAdditionalAuthenticationRequired: "02",
	ReasonSystemError:                      "96",
	ReasonFormatError:                      "30",
	ReasonDuplicateTransaction:             "94",
	ReasonIssuerUnavailable:                "91",
	ReasonAuthorizationReversed:            "95",
}
