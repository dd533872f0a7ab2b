// Package orchestrator composes the caching, deduplication, credential,
// breaker and scheduling layers into the dashboard data service. For a
// given client and date range it fans out to every connected platform,
// normalizes whatever succeeds, and caches the merged aggregate under
// dependency tags so credential changes drop exactly the affected entries.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/breaker"
	"github.com/pulsedash/dashboard/cache"
	"github.com/pulsedash/dashboard/deduper"
	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/pkg/metrics"
	"github.com/pulsedash/dashboard/platform"
	"github.com/pulsedash/dashboard/scheduler"
)

// DefaultMaxAge is how long a cached aggregate may serve before a rebuild.
const DefaultMaxAge = 5 * time.Minute

// CredentialSource is the slice of the credential store the orchestrator
// needs: a currently usable token per platform.
type CredentialSource interface {
	GetAccessToken(ctx context.Context, p models.Platform) (string, error)
}

type Service struct {
	clients  models.ClientDirectory
	creds    CredentialSource
	fetchers map[models.Platform]platform.Fetcher
	breakers map[models.Platform]*breaker.Breaker
	cache    *cache.Cache
	dedup    deduper.Deduper
	sched    *scheduler.Scheduler
	logger   *zap.Logger
	maxAge   time.Duration
}

type Option func(*Service)

// WithMaxAge overrides how stale a cached aggregate may be.
func WithMaxAge(d time.Duration) Option {
	return func(s *Service) {
		s.maxAge = d
	}
}

// New builds the service and one circuit breaker per registered platform,
// all sharing breakerCfg. Instances live for the process lifetime; nothing
// here re-initializes implicitly.
func New(
	clients models.ClientDirectory,
	creds CredentialSource,
	fetchers map[models.Platform]platform.Fetcher,
	store *cache.Cache,
	dedup deduper.Deduper,
	sched *scheduler.Scheduler,
	breakerCfg breaker.Config,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	breakers := make(map[models.Platform]*breaker.Breaker, len(fetchers))
	for p := range fetchers {
		breakers[p] = breaker.New(p.String(), breakerCfg, logger)
	}

	s := &Service{
		clients:  clients,
		creds:    creds,
		fetchers: fetchers,
		breakers: breakers,
		cache:    store,
		dedup:    dedup,
		sched:    sched,
		logger:   logger,
		maxAge:   DefaultMaxAge,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// GetDashboardData returns the aggregate for the client and range, served
// from cache when fresh enough. Concurrent callers for the same key share
// a single build. Only a failed client lookup is fatal; platform failures
// degrade to unavailable sections.
func (s *Service) GetDashboardData(ctx context.Context, clientID string, dateRange models.DateRange, forceRefresh bool) (*models.DashboardAggregate, error) {
	key := cacheKey(clientID, dateRange)

	if !forceRefresh {
		if v, ok := s.cache.Get(key, s.maxAge); ok {
			return v.(*models.DashboardAggregate), nil
		}
	}

	v, err := s.dedup.Do(ctx, key, func(ctx context.Context) (any, error) {
		return s.build(ctx, clientID, dateRange, forceRefresh)
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.DashboardAggregate), nil
}

// InvalidateCache drops cached aggregates. With a dependency tag it drops
// exactly that tag's entries; with a client id it drops that client's
// entries; with neither it clears everything.
func (s *Service) InvalidateCache(clientID, dependency string) int {
	switch {
	case dependency != "":
		return s.cache.Invalidate(dependency)
	case clientID != "":
		return s.cache.Invalidate(ClientTag(clientID))
	default:
		s.cache.Clear()

		return 0
	}
}

// ClientTag is the dependency tag owning every cached aggregate of one
// client.
func ClientTag(clientID string) string {
	return "client-" + clientID
}

// PlatformTag is the dependency tag owning the aggregates that include
// one platform's data for one client.
func PlatformTag(p models.Platform, clientID string) string {
	return fmt.Sprintf("%s-%s", p, clientID)
}

func cacheKey(clientID string, dateRange models.DateRange) string {
	return fmt.Sprintf("dashboard:%s:%s", clientID, dateRange.Key())
}

type platformResult struct {
	platform models.Platform
	section  *models.PlatformMetrics
	previous *models.PlatformMetrics
}

func (s *Service) build(ctx context.Context, clientID string, dateRange models.DateRange, forceRefresh bool) (*models.DashboardAggregate, error) {
	client, err := s.clients.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load client %s: %w", clientID, err)
	}

	// Forced rebuilds are user-initiated and jump the queue.
	priority := scheduler.PriorityNormal
	if forceRefresh {
		priority = scheduler.PriorityHigh
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []platformResult
		tags    = []string{ClientTag(clientID)}
	)

	for p, fetcher := range s.fetchers {
		accountID, ok := client.AccountFor(p)
		if !ok {
			// Never call an API for an unconfigured account.
			continue
		}

		tags = append(tags, PlatformTag(p, clientID))

		wg.Add(1)

		go func(p models.Platform, fetcher platform.Fetcher, accountID string) {
			defer wg.Done()

			res := platformResult{
				platform: p,
				section:  s.fetchPlatform(ctx, p, fetcher, accountID, dateRange, priority),
			}

			// Previous-period numbers are comparison garnish: fetched
			// at low priority and only when the current period worked.
			if res.section.Available {
				res.previous = s.fetchPlatform(ctx, p, fetcher, accountID, dateRange.PreviousPeriod(), scheduler.PriorityLow)
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(p, fetcher, accountID)
	}

	wg.Wait()

	agg := s.merge(clientID, dateRange, results)

	s.cache.Set(cacheKey(clientID, dateRange), agg, tags)

	return agg, nil
}

// fetchPlatform resolves a token and runs the platform call through the
// scheduler and the platform's breaker. Every failure is contained to an
// unavailable-marked section.
func (s *Service) fetchPlatform(ctx context.Context, p models.Platform, fetcher platform.Fetcher, accountID string, dateRange models.DateRange, priority scheduler.Priority) *models.PlatformMetrics {
	token, err := s.creds.GetAccessToken(ctx, p)
	if err != nil {
		s.logger.Warn("skipping platform without usable credential",
			zap.String("platform", p.String()),
			zap.Error(err))

		return models.Unavailable(p, "not connected")
	}

	br := s.breakers[p]
	start := time.Now()

	handle := s.sched.Schedule(func(ctx context.Context) (any, error) {
		return br.Execute(ctx, func(ctx context.Context) (any, error) {
			return fetcher.Fetch(ctx, accountID, dateRange, token)
		})
	}, priority)

	v, err := handle.Wait(ctx)

	metrics.PlatformFetchDuration.WithLabelValues(p.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Warn("platform fetch failed",
			zap.String("platform", p.String()),
			zap.String("client_account", accountID),
			zap.Error(err))

		return models.Unavailable(p, err.Error())
	}

	return v.(*models.PlatformMetrics)
}

func (s *Service) merge(clientID string, dateRange models.DateRange, results []platformResult) *models.DashboardAggregate {
	agg := &models.DashboardAggregate{
		ClientID:    clientID,
		Range:       dateRange,
		Platforms:   make(map[models.Platform]*models.PlatformMetrics, len(results)),
		GeneratedAt: time.Now(),
	}

	var (
		previous    models.Totals
		hasPrevious bool
	)

	for _, res := range results {
		agg.Platforms[res.platform] = res.section
		agg.Totals.Add(res.section)

		if res.previous != nil && res.previous.Available {
			previous.Add(res.previous)
			hasPrevious = true
		}
	}

	agg.Totals.Derive()

	if hasPrevious {
		previous.Derive()
		agg.Previous = &previous
	}

	return agg
}
