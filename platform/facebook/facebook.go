// Package facebook fetches ad insights from the Facebook Graph API and
// normalizes them into the common metrics shape.
package facebook

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
	defaultBaseURL = "https://graph.facebook.com"
	apiVersion     = "v19.0"
)

// leadActionPriority orders the overlapping lead-like action types the
// Graph API reports for the same conversion event. Exactly one is
// selected per row; summing them double-counts the same lead.
var leadActionPriority = []string{
	"lead",
	"onsite_conversion.lead_grouped",
	"leadgen.other",
	"offsite_conversion.fb_pixel_lead",
}

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
		logger:  logger.With(zap.String("platform", models.PlatformFacebook.String())),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Fetcher) Platform() models.Platform {
	return models.PlatformFacebook
}

type action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// insightsResponse mirrors the Graph API insights payload; the API
// reports every numeric field as a string.
type insightsResponse struct {
	Data []struct {
		Spend       string   `json:"spend"`
		Impressions string   `json:"impressions"`
		Clicks      string   `json:"clicks"`
		Actions     []action `json:"actions"`
	} `json:"data"`
}

func (f *Fetcher) Fetch(ctx context.Context, accountID string, dateRange models.DateRange, token string) (*models.PlatformMetrics, error) {
	endpoint := fmt.Sprintf("%s/%s/act_%s/insights", f.baseURL, apiVersion, accountID)

	params := url.Values{}
	params.Set("fields", "spend,impressions,clicks,actions")
	params.Set("level", "account")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		dateRange.Start.Format("2006-01-02"), dateRange.End.Format("2006-01-02")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build insights request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	var resp insightsResponse
	if err := platform.DoJSON(f.client, models.PlatformFacebook, req, &resp); err != nil {
		return nil, err
	}

	return normalize(&resp), nil
}

func normalize(resp *insightsResponse) *models.PlatformMetrics {
	m := &models.PlatformMetrics{Platform: models.PlatformFacebook, Available: true}

	for _, row := range resp.Data {
		m.Spend += parseFloat(row.Spend)
		m.Impressions += parseInt(row.Impressions)
		m.Clicks += parseInt(row.Clicks)
		m.Leads += extractLeads(row.Actions)
	}

	m.Derive()

	return m
}

// extractLeads selects a single lead action type per row by fixed
// priority order and uses only that value.
func extractLeads(actions []action) int64 {
	byType := make(map[string]string, len(actions))
	for _, a := range actions {
		byType[a.ActionType] = a.Value
	}

	for _, actionType := range leadActionPriority {
		if v, ok := byType[actionType]; ok {
			return parseInt(v)
		}
	}

	return 0
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)

	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)

	return v
}
