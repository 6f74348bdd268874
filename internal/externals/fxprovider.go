package externals

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FXProvider resolves a conversion rate between two ISO-4217 currencies.
// This is the contract for C3 FX Provider; an external rate table is
// assumed to be the source of truth (rate sourcing itself is out of scope).
type FXProvider interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error)
}

type httpFXProvider struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPFXProvider constructs an FXProvider client against baseURL.
func NewHTTPFXProvider(baseURL string, httpClient *http.Client) FXProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &httpFXProvider{httpClient: httpClient, baseURL: baseURL}
}

type fxRateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

func (f *httpFXProvider) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	fromCurrency = strings.ToUpper(fromCurrency)
	toCurrency = strings.ToUpper(toCurrency)
	if fromCurrency == toCurrency {
		return decimal.NewFromInt(1), nil
	}

	url := fmt.Sprintf("%s/rates?from=%s&to=%s", f.baseURL, fromCurrency, toCurrency)
	var resp fxRateResponse
	if err := fetchJSON(ctx, f.httpClient, http.MethodGet, url, nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("fx provider: %w", err)
	}
	if !resp.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx provider: invalid rate %s for %s/%s", resp.Rate, fromCurrency, toCurrency)
	}
	return resp.Rate, nil
}
