// Package externals implements thin HTTP clients for the out-of-process
// collaborators the authorization pipeline depends on: the card directory,
// the ledger, and the FX rate table. Only the contracts these services
// expose are implemented here; their internals are out of scope.
package externals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/logger"
)

// fetchJSON performs an HTTP request against target and decodes a JSON
// response body into out. method/body are nil-able for GET requests.
func fetchJSON(ctx context.Context, client *http.Client, method, url string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	hasBody := body != nil
	if hasBody {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("external call failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("external call returned error status", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("external call to %s returned status %d", url, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		logger.Error("failed to decode external response", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
