package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/dashboard/breaker"
	"github.com/pulsedash/dashboard/cache"
	"github.com/pulsedash/dashboard/deduper"
	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/platform"
	"github.com/pulsedash/dashboard/scheduler"
)

type fakeDirectory struct {
	clients map[string]*models.Client
}

func (d *fakeDirectory) GetClientByID(_ context.Context, id string) (*models.Client, error) {
	c, ok := d.clients[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	return c, nil
}

type fakeCreds struct {
	tokens map[models.Platform]string
}

func (c *fakeCreds) GetAccessToken(_ context.Context, p models.Platform) (string, error) {
	tok, ok := c.tokens[p]
	if !ok {
		return "", models.ErrNotConnected
	}

	return tok, nil
}

type fakeFetcher struct {
	p     models.Platform
	calls atomic.Int64
	fn    func(ctx context.Context, accountID string, dateRange models.DateRange, token string) (*models.PlatformMetrics, error)
}

func (f *fakeFetcher) Platform() models.Platform { return f.p }

func (f *fakeFetcher) Fetch(ctx context.Context, accountID string, dateRange models.DateRange, token string) (*models.PlatformMetrics, error) {
	f.calls.Add(1)

	return f.fn(ctx, accountID, dateRange, token)
}

func healthyFetcher(p models.Platform, leads int64, spend float64) *fakeFetcher {
	return &fakeFetcher{p: p, fn: func(_ context.Context, _ string, _ models.DateRange, _ string) (*models.PlatformMetrics, error) {
		m := &models.PlatformMetrics{Platform: p, Leads: leads, Spend: spend, Impressions: 1000, Clicks: 50, Available: true}
		m.Derive()

		return m, nil
	}}
}

func startScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	sched := scheduler.New(3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = sched.Run(ctx) }()

	return sched
}

func testRange() models.DateRange {
	return models.DateRange{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC),
	}
}

func newService(t *testing.T, dir models.ClientDirectory, creds CredentialSource, fetchers map[models.Platform]platform.Fetcher) *Service {
	t.Helper()

	return New(dir, creds, fetchers, cache.New(cache.DefaultCapacity), deduper.New(), startScheduler(t), breaker.Config{}, nil)
}

func TestGetDashboardDataOnlyConnectedPlatforms(t *testing.T) {
	fb := healthyFetcher(models.PlatformFacebook, 10, 250)
	ga := healthyFetcher(models.PlatformGoogleAds, 5, 100)

	dir := &fakeDirectory{clients: map[string]*models.Client{
		"client-1": {
			ID:   "client-1",
			Name: "Acme",
			Accounts: map[models.Platform]string{
				models.PlatformFacebook:  "act-123",
				models.PlatformGoogleAds: "none", // explicitly not connected
			},
		},
	}}

	creds := &fakeCreds{tokens: map[models.Platform]string{
		models.PlatformFacebook:  "fb-token",
		models.PlatformGoogleAds: "ga-token",
	}}

	svc := newService(t, dir, creds, map[models.Platform]platform.Fetcher{
		models.PlatformFacebook:  fb,
		models.PlatformGoogleAds: ga,
	})

	agg, err := svc.GetDashboardData(context.Background(), "client-1", testRange(), false)
	require.NoError(t, err)

	require.Contains(t, agg.Platforms, models.PlatformFacebook)
	assert.NotContains(t, agg.Platforms, models.PlatformGoogleAds, "a 'none' account must never be fetched")

	assert.Equal(t, int64(10), agg.Totals.Leads)
	assert.Equal(t, float64(25), agg.Totals.CostPerLead)

	// Current period plus the previous-period comparison.
	assert.Equal(t, int64(2), fb.calls.Load())
	assert.Equal(t, int64(0), ga.calls.Load())
}

func TestGetDashboardDataPartialFailure(t *testing.T) {
	fb := healthyFetcher(models.PlatformFacebook, 10, 250)

	ga := &fakeFetcher{p: models.PlatformGoogleAds, fn: func(_ context.Context, _ string, _ models.DateRange, _ string) (*models.PlatformMetrics, error) {
		return nil, errors.New("quota exceeded")
	}}

	dir := &fakeDirectory{clients: map[string]*models.Client{
		"client-1": {ID: "client-1", Accounts: map[models.Platform]string{
			models.PlatformFacebook:  "act-123",
			models.PlatformGoogleAds: "123-456-7890",
		}},
	}}

	creds := &fakeCreds{tokens: map[models.Platform]string{
		models.PlatformFacebook:  "fb-token",
		models.PlatformGoogleAds: "ga-token",
	}}

	svc := newService(t, dir, creds, map[models.Platform]platform.Fetcher{
		models.PlatformFacebook:  fb,
		models.PlatformGoogleAds: ga,
	})

	agg, err := svc.GetDashboardData(context.Background(), "client-1", testRange(), false)
	require.NoError(t, err, "one failing platform must not fail the dashboard")

	section := agg.Platforms[models.PlatformGoogleAds]
	require.NotNil(t, section)
	assert.False(t, section.Available)
	assert.Contains(t, section.Error, "quota exceeded")

	// Totals reflect only the healthy platform.
	assert.Equal(t, int64(10), agg.Totals.Leads)
	assert.Equal(t, float64(250), agg.Totals.Spend)

	// No previous-period fetch for a platform whose current period failed.
	assert.Equal(t, int64(1), ga.calls.Load())
}

func TestGetDashboardDataMissingCredential(t *testing.T) {
	fb := healthyFetcher(models.PlatformFacebook, 10, 250)

	dir := &fakeDirectory{clients: map[string]*models.Client{
		"client-1": {ID: "client-1", Accounts: map[models.Platform]string{
			models.PlatformFacebook: "act-123",
		}},
	}}

	svc := newService(t, dir, &fakeCreds{}, map[models.Platform]platform.Fetcher{
		models.PlatformFacebook: fb,
	})

	agg, err := svc.GetDashboardData(context.Background(), "client-1", testRange(), false)
	require.NoError(t, err)

	section := agg.Platforms[models.PlatformFacebook]
	require.NotNil(t, section)
	assert.False(t, section.Available)
	assert.Equal(t, "not connected", section.Error)
	assert.Equal(t, int64(0), fb.calls.Load(), "no API call without a usable credential")
}

func TestGetDashboardDataClientNotFound(t *testing.T) {
	svc := newService(t, &fakeDirectory{}, &fakeCreds{}, nil)

	_, err := svc.GetDashboardData(context.Background(), "ghost", testRange(), false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetDashboardDataCachesAndForceRefreshes(t *testing.T) {
	fb := healthyFetcher(models.PlatformFacebook, 10, 250)

	dir := &fakeDirectory{clients: map[string]*models.Client{
		"client-1": {ID: "client-1", Accounts: map[models.Platform]string{
			models.PlatformFacebook: "act-123",
		}},
	}}

	creds := &fakeCreds{tokens: map[models.Platform]string{models.PlatformFacebook: "fb-token"}}

	svc := newService(t, dir, creds, map[models.Platform]platform.Fetcher{models.PlatformFacebook: fb})

	ctx := context.Background()

	first, err := svc.GetDashboardData(ctx, "client-1", testRange(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fb.calls.Load())

	second, err := svc.GetDashboardData(ctx, "client-1", testRange(), false)
	require.NoError(t, err)
	assert.Same(t, first, second, "second read is a cache hit")
	assert.Equal(t, int64(2), fb.calls.Load())

	third, err := svc.GetDashboardData(ctx, "client-1", testRange(), true)
	require.NoError(t, err)
	assert.NotSame(t, first, third, "force refresh bypasses the cache")
	assert.Equal(t, int64(4), fb.calls.Load())
}

func TestInvalidateCacheByTag(t *testing.T) {
	fb := healthyFetcher(models.PlatformFacebook, 10, 250)

	dir := &fakeDirectory{clients: map[string]*models.Client{
		"client-1": {ID: "client-1", Accounts: map[models.Platform]string{
			models.PlatformFacebook: "act-123",
		}},
	}}

	creds := &fakeCreds{tokens: map[models.Platform]string{models.PlatformFacebook: "fb-token"}}

	svc := newService(t, dir, creds, map[models.Platform]platform.Fetcher{models.PlatformFacebook: fb})

	ctx := context.Background()

	_, err := svc.GetDashboardData(ctx, "client-1", testRange(), false)
	require.NoError(t, err)

	dropped := svc.InvalidateCache("", PlatformTag(models.PlatformFacebook, "client-1"))
	assert.Equal(t, 1, dropped)

	_, err = svc.GetDashboardData(ctx, "client-1", testRange(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), fb.calls.Load(), "invalidation forces a rebuild")
}

func TestGetDashboardDataDeduplicatesConcurrentBuilds(t *testing.T) {
	release := make(chan struct{})

	fb := &fakeFetcher{p: models.PlatformFacebook, fn: func(ctx context.Context, _ string, _ models.DateRange, _ string) (*models.PlatformMetrics, error) {
		<-release

		return &models.PlatformMetrics{Platform: models.PlatformFacebook, Leads: 1, Available: true}, nil
	}}

	dir := &fakeDirectory{clients: map[string]*models.Client{
		"client-1": {ID: "client-1", Accounts: map[models.Platform]string{
			models.PlatformFacebook: "act-123",
		}},
	}}

	creds := &fakeCreds{tokens: map[models.Platform]string{models.PlatformFacebook: "fb-token"}}

	svc := newService(t, dir, creds, map[models.Platform]platform.Fetcher{models.PlatformFacebook: fb})

	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		aggs [2]*models.DashboardAggregate
	)

	for i := range aggs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			agg, err := svc.GetDashboardData(ctx, "client-1", testRange(), false)
			assert.NoError(t, err)

			aggs[i] = agg
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Same(t, aggs[0], aggs[1], "concurrent callers share one build")
	assert.Equal(t, int64(2), fb.calls.Load(), "current plus previous period, once")
}

func TestGetDashboardDataPreviousPeriodTotals(t *testing.T) {
	dr := testRange()

	fb := &fakeFetcher{p: models.PlatformFacebook, fn: func(_ context.Context, _ string, got models.DateRange, _ string) (*models.PlatformMetrics, error) {
		leads := int64(10)
		if !got.Start.Equal(dr.Start) {
			leads = 4 // previous period
		}

		return &models.PlatformMetrics{Platform: models.PlatformFacebook, Leads: leads, Spend: float64(leads) * 20, Available: true}, nil
	}}

	dir := &fakeDirectory{clients: map[string]*models.Client{
		"client-1": {ID: "client-1", Accounts: map[models.Platform]string{
			models.PlatformFacebook: "act-123",
		}},
	}}

	creds := &fakeCreds{tokens: map[models.Platform]string{models.PlatformFacebook: "fb-token"}}

	svc := newService(t, dir, creds, map[models.Platform]platform.Fetcher{models.PlatformFacebook: fb})

	agg, err := svc.GetDashboardData(context.Background(), "client-1", testRange(), false)
	require.NoError(t, err)

	assert.Equal(t, int64(10), agg.Totals.Leads)
	require.NotNil(t, agg.Previous)
	assert.Equal(t, int64(4), agg.Previous.Leads)
	assert.Equal(t, float64(20), agg.Previous.CostPerLead)
}
