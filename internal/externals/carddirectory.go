package externals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

// ErrNotFound is returned by an external client when the remote resource
// does not exist (HTTP 404).
var ErrNotFound = errors.New("external resource not found")

// CardDirectory resolves card attributes by panHash or token. This is the
// contract for C1 Card Directory; the service owning the actual card data
// lives outside this module.
type CardDirectory interface {
	ResolveByPANHash(ctx context.Context, panHash string) (*domain.CardDetails, error)
	ResolveByToken(ctx context.Context, token string) (*domain.CardDetails, error)
}

type httpCardDirectory struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPCardDirectory constructs a CardDirectory client against baseURL.
// A nil httpClient gets a default with a 5 second timeout.
func NewHTTPCardDirectory(baseURL string, httpClient *http.Client) CardDirectory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &httpCardDirectory{httpClient: httpClient, baseURL: baseURL}
}

type cardDetailsResponse struct {
	CardID                   int64            `json:"cardId"`
	AccountID                int64            `json:"accountId"`
	AccountSpaceID           *int64           `json:"accountSpaceId,omitempty"`
	AccountCurrency          string           `json:"accountCurrency"`
	Status                   string           `json:"status"`
	IssuerCountry            string           `json:"issuerCountry"`
	ProductCode              string           `json:"productCode"`
	ExpiryDate               string           `json:"expiryDate"`
	ThreeDSEnrollmentStatus  string           `json:"threeDsEnrollmentStatus"`
	TransactionLimitOverride *decimal.Decimal `json:"transactionLimitOverride,omitempty"`
	DailyLimitOverride       *decimal.Decimal `json:"dailyLimitOverride,omitempty"`
	MonthlyLimitOverride     *decimal.Decimal `json:"monthlyLimitOverride,omitempty"`
	LimitOverrideExpiresAt   *time.Time       `json:"limitOverrideExpiresAt,omitempty"`
}

func (c *httpCardDirectory) ResolveByPANHash(ctx context.Context, panHash string) (*domain.CardDetails, error) {
	url := fmt.Sprintf("%s/cards/by-pan-hash/%s", c.baseURL, panHash)
	return c.fetch(ctx, url)
}

func (c *httpCardDirectory) ResolveByToken(ctx context.Context, token string) (*domain.CardDetails, error) {
	url := fmt.Sprintf("%s/cards/by-token/%s", c.baseURL, token)
	return c.fetch(ctx, url)
}

func (c *httpCardDirectory) fetch(ctx context.Context, url string) (*domain.CardDetails, error) {
	var resp cardDetailsResponse
	if err := fetchJSON(ctx, c.httpClient, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.CardDetails{
		CardID:                   resp.CardID,
		AccountID:                resp.AccountID,
		AccountSpaceID:           resp.AccountSpaceID,
		AccountCurrency:          resp.AccountCurrency,
		Status:                   resp.Status,
		IssuerCountry:            resp.IssuerCountry,
		ProductCode:              resp.ProductCode,
		ExpiryDate:               resp.ExpiryDate,
		ThreeDSEnrollmentStatus:  resp.ThreeDSEnrollmentStatus,
		TransactionLimitOverride: resp.TransactionLimitOverride,
		DailyLimitOverride:       resp.DailyLimitOverride,
		MonthlyLimitOverride:     resp.MonthlyLimitOverride,
		LimitOverrideExpiresAt:   resp.LimitOverrideExpiresAt,
	}, nil
}
