// Package sheets treats a Google Sheet as a lead source: every data row
// whose date falls inside the requested range counts as one lead. Spend
// and delivery metrics do not exist for this platform.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/platform"
)

const defaultReadRange = "A1:Z10000"

// dateLayouts covers the formats spreadsheet owners actually type.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02T15:04:05Z07:00",
	"Jan 2, 2006",
}

var dateHeaders = []string{"date", "created", "created_at", "timestamp", "submitted"}

type Fetcher struct {
	endpoint string
	logger   *zap.Logger
}

type Option func(*Fetcher)

// WithEndpoint points the fetcher at a different API host, used by tests.
func WithEndpoint(endpoint string) Option {
	return func(f *Fetcher) {
		f.endpoint = endpoint
	}
}

func New(logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{
		logger: logger.With(zap.String("platform", models.PlatformSheets.String())),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Fetcher) Platform() models.Platform {
	return models.PlatformSheets
}

// Fetch reads the sheet identified by accountID. The id may carry an
// explicit tab as "spreadsheetID#TabName"; otherwise the first sheet is
// read.
func (f *Fetcher) Fetch(ctx context.Context, accountID string, dateRange models.DateRange, token string) (*models.PlatformMetrics, error) {
	spreadsheetID, readRange := splitAccountID(accountID)

	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}

	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	srv, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	values, err := srv.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	m := &models.PlatformMetrics{
		Platform:  models.PlatformSheets,
		Leads:     countLeads(values.Values, dateRange),
		Available: true,
	}
	m.Derive()

	return m, nil
}

func splitAccountID(accountID string) (spreadsheetID, readRange string) {
	if id, tab, ok := strings.Cut(accountID, "#"); ok {
		return id, fmt.Sprintf("%s!%s", tab, defaultReadRange)
	}

	return accountID, defaultReadRange
}

func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return platform.FromStatus(models.PlatformSheets, gErr.Code)
	}

	return platform.FromTransport(models.PlatformSheets, err)
}

// countLeads counts data rows whose date cell falls inside the range. The
// first row is treated as a header to locate the date column; when no
// header matches, the first column is assumed.
func countLeads(rows [][]any, dateRange models.DateRange) int64 {
	if len(rows) < 2 {
		return 0
	}

	dateCol := findDateColumn(rows[0])

	var leads int64

	for _, row := range rows[1:] {
		if dateCol >= len(row) {
			continue
		}

		cell, ok := row[dateCol].(string)
		if !ok {
			continue
		}

		ts, ok := parseDate(cell)
		if !ok {
			continue
		}

		if !ts.Before(dateRange.Start) && !ts.After(dateRange.End.Add(24*time.Hour-time.Nanosecond)) {
			leads++
		}
	}

	return leads
}

func findDateColumn(header []any) int {
	for i, cell := range header {
		name, ok := cell.(string)
		if !ok {
			continue
		}

		name = strings.ToLower(strings.TrimSpace(name))

		for _, candidate := range dateHeaders {
			if name == candidate {
				return i
			}
		}
	}

	return 0
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)

	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}
