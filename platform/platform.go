// Package platform defines the adapter contract every external data source
// implements, plus the classified error type the circuit breaker and the
// orchestrator use to tell transient failures from permanent ones. Raw
// platform payloads never leave an adapter: each Fetch returns the common
// normalized metrics shape.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pulsedash/dashboard/models"
)

// DefaultTimeout bounds every outbound platform call.
const DefaultTimeout = 30 * time.Second

// Fetcher retrieves and normalizes metrics for one external platform.
type Fetcher interface {
	Platform() models.Platform
	Fetch(ctx context.Context, accountID string, dateRange models.DateRange, token string) (*models.PlatformMetrics, error)
}

// NewHTTPClient returns the client adapters share: a hard per-request
// timeout so a hung upstream surfaces as a classifiable timeout error.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{Timeout: timeout}
}

// DoJSON executes req, classifies any transport or status failure for
// platform p, and decodes a successful JSON body into out.
func DoJSON(client *http.Client, p models.Platform, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return FromTransport(p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FromStatus(p, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Platform: p, Kind: KindMalformed, cause: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}
