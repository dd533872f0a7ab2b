// Package gohighlevel fetches pipeline opportunities from the GoHighLevel
// CRM API. The CRM reports no ad spend or delivery, so only lead counts
// feed the normalized shape.
package gohighlevel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/platform"
)

const (
	defaultBaseURL = "https://services.leadconnectorhq.com"
	apiVersion     = "2021-07-28"
	pageLimit      = 100
)

type Fetcher struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
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

func New(logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		client:  platform.NewHTTPClient(platform.DefaultTimeout),
		baseURL: defaultBaseURL,
		logger:  logger.With(zap.String("platform", models.PlatformGoHighLevel.String())),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Fetcher) Platform() models.Platform {
	return models.PlatformGoHighLevel
}

type searchResponse struct {
	Opportunities []struct {
		ID string `json:"id"`
	} `json:"opportunities"`
	Meta struct {
		Total int64 `json:"total"`
	} `json:"meta"`
}

func (f *Fetcher) Fetch(ctx context.Context, accountID string, dateRange models.DateRange, token string) (*models.PlatformMetrics, error) {
	params := url.Values{}
	params.Set("location_id", accountID)
	params.Set("date", dateRange.Start.Format("01-02-2006"))
	params.Set("endDate", dateRange.End.Format("01-02-2006"))
	params.Set("limit", strconv.Itoa(pageLimit))

	endpoint := fmt.Sprintf("%s/opportunities/search?%s", f.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build opportunities request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Version", apiVersion)

	var resp searchResponse
	if err := platform.DoJSON(f.client, models.PlatformGoHighLevel, req, &resp); err != nil {
		return nil, err
	}

	leads := resp.Meta.Total
	if leads == 0 {
		leads = int64(len(resp.Opportunities))
	}

	m := &models.PlatformMetrics{
		Platform:  models.PlatformGoHighLevel,
		Leads:     leads,
		Available: true,
	}
	m.Derive()

	return m, nil
}
