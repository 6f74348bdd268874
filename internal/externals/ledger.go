package externals

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

// Ledger is the contract for C2 Ledger: it owns account balances and the
// reserved-funds bucket. The hold manager calls Reserve on create,
// ReleaseReserve on release/expire, and Post on capture.
type Ledger interface {
	GetBalance(ctx context.Context, accountID int64, accountSpaceID *int64, currency string) (*domain.BalanceSnapshot, error)
	Reserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency string, reference string) error
	ReleaseReserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency string, reference string) error
	Post(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency string, reference string) error
}

type httpLedger struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPLedger constructs a Ledger client against baseURL.
func NewHTTPLedger(baseURL string, httpClient *http.Client) Ledger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &httpLedger{httpClient: httpClient, baseURL: baseURL}
}

type balanceResponse struct {
	AvailableBefore decimal.Decimal `json:"availableBefore"`
	AvailableAfter  decimal.Decimal `json:"availableAfter"`
	LedgerBalance   decimal.Decimal `json:"ledgerBalance"`
	TotalOnHold     decimal.Decimal `json:"totalOnHold"`
}

func (l *httpLedger) GetBalance(ctx context.Context, accountID int64, accountSpaceID *int64, currency string) (*domain.BalanceSnapshot, error) {
	url := fmt.Sprintf("%s/accounts/%d/balance?currency=%s", l.baseURL, accountID, currency)
	if accountSpaceID != nil {
		url = fmt.Sprintf("%s&accountSpaceId=%d", url, *accountSpaceID)
	}

	var resp balanceResponse
	if err := fetchJSON(ctx, l.httpClient, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.BalanceSnapshot{
		AvailableBefore: resp.AvailableBefore,
		AvailableAfter:  resp.AvailableAfter,
		LedgerBalance:   resp.LedgerBalance,
		TotalOnHold:     resp.TotalOnHold,
	}, nil
}

type reserveRequest struct {
	AccountSpaceID *int64          `json:"accountSpaceId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Reference      string          `json:"reference"`
}

func (l *httpLedger) Reserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency string, reference string) error {
	url := fmt.Sprintf("%s/accounts/%d/reserve", l.baseURL, accountID)
	body := reserveRequest{AccountSpaceID: accountSpaceID, Amount: amount, Currency: currency, Reference: reference}
	return fetchJSON(ctx, l.httpClient, http.MethodPost, url, body, nil)
}

func (l *httpLedger) ReleaseReserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency string, reference string) error {
	url := fmt.Sprintf("%s/accounts/%d/release", l.baseURL, accountID)
	body := reserveRequest{AccountSpaceID: accountSpaceID, Amount: amount, Currency: currency, Reference: reference}
	return fetchJSON(ctx, l.httpClient, http.MethodPost, url, body, nil)
}

func (l *httpLedger) Post(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency string, reference string) error {
	url := fmt.Sprintf("%s/accounts/%d/post", l.baseURL, accountID)
	body := reserveRequest{AccountSpaceID: accountSpaceID, Amount: amount, Currency: currency, Reference: reference}
	return fetchJSON(ctx, l.httpClient, http.MethodPost, url, body, nil)
}
