// Package googleads fetches search-ads performance from the Google Ads API
// and normalizes it into the common metrics shape.
package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/platform"
)

const (
	defaultBaseURL = "https://googleads.googleapis.com"
	apiVersion     = "v16"
)

type Fetcher struct {
	client         *http.Client
	baseURL        string
	developerToken string
	logger         *zap.Logger
}

type Option func(*Fetcher)

// WithBaseURL points the fetcher at a different API host, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(f *Fetcher) {
		f.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

func New(developerToken string, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		client:         platform.NewHTTPClient(platform.DefaultTimeout),
		baseURL:        defaultBaseURL,
		developerToken: developerToken,
		logger:         logger.With(zap.String("platform", models.PlatformGoogleAds.String())),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Fetcher) Platform() models.Platform {
	return models.PlatformGoogleAds
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []struct {
		Metrics struct {
			CostMicros  int64   `json:"costMicros,string"`
			Impressions int64   `json:"impressions,string"`
			Clicks      int64   `json:"clicks,string"`
			Conversions float64 `json:"conversions"`
		} `json:"metrics"`
	} `json:"results"`
}

func (f *Fetcher) Fetch(ctx context.Context, accountID string, dateRange models.DateRange, token string) (*models.PlatformMetrics, error) {
	query := fmt.Sprintf(
		"SELECT metrics.cost_micros, metrics.impressions, metrics.clicks, metrics.conversions "+
			"FROM customer WHERE segments.date BETWEEN '%s' AND '%s'",
		dateRange.Start.Format("2006-01-02"), dateRange.End.Format("2006-01-02"))

	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", f.baseURL, apiVersion, accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", f.developerToken)

	var resp searchResponse
	if err := platform.DoJSON(f.client, models.PlatformGoogleAds, req, &resp); err != nil {
		return nil, err
	}

	return normalize(&resp), nil
}

func normalize(resp *searchResponse) *models.PlatformMetrics {
	m := &models.PlatformMetrics{Platform: models.PlatformGoogleAds, Available: true}

	for _, row := range resp.Results {
		m.Spend += float64(row.Metrics.CostMicros) / 1e6
		m.Impressions += row.Metrics.Impressions
		m.Clicks += row.Metrics.Clicks
		m.Leads += int64(row.Metrics.Conversions)
	}

	m.Derive()

	return m
}
