// Package refresher keeps OAuth credentials warm. An Exchanger speaks each
// platform's token endpoint through golang.org/x/oauth2; the Daemon sweeps
// the credential store on an interval and proactively refreshes tokens
// nearing expiry, so interactive requests rarely pay the refresh cost.
package refresher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/pulsedash/dashboard/credentials"
	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/pkg/metrics"
)

const (
	// DefaultInterval is how often the daemon sweeps.
	DefaultInterval = 30 * time.Minute

	// DefaultThreshold is the proactive time-to-expiry cutoff. It sits
	// above the store's reactive 5 minute threshold so the daemon
	// normally wins the race.
	DefaultThreshold = 10 * time.Minute
)

// Exchanger refreshes tokens against each platform's OAuth token endpoint.
type Exchanger struct {
	configs map[models.Platform]*oauth2.Config
	logger  *zap.Logger
}

func NewExchanger(configs map[models.Platform]*oauth2.Config, logger *zap.Logger) *Exchanger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Exchanger{configs: configs, logger: logger}
}

// Refresh implements credentials.RefreshFunc.
func (e *Exchanger) Refresh(ctx context.Context, p models.Platform, refreshToken string) (*models.TokenMaterial, error) {
	cfg, ok := e.configs[p]
	if !ok {
		return nil, fmt.Errorf("no oauth config for platform %s", p)
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(p.String(), "failure").Inc()

		return nil, fmt.Errorf("failed to refresh %s token: %w", p, err)
	}

	metrics.TokenRefreshes.WithLabelValues(p.String(), "success").Inc()

	material := &models.TokenMaterial{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	}

	// The authorization server may rotate the refresh token; pass it
	// through only when it actually issued one.
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		material.RefreshToken = tok.RefreshToken
	}

	if !tok.Expiry.IsZero() {
		if ttl := time.Until(tok.Expiry); ttl > 0 {
			material.ExpiresIn = int64(ttl.Seconds())
		}
	}

	return material, nil
}

// Daemon periodically refreshes every OAuth platform whose token is close
// to expiry. Platform failures are independent: one bad integration never
// blocks the rest of the sweep.
type Daemon struct {
	store     *credentials.Store
	platforms []models.Platform
	interval  time.Duration
	threshold time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Daemon)

func WithInterval(d time.Duration) Option {
	return func(r *Daemon) {
		r.interval = d
	}
}

func WithThreshold(d time.Duration) Option {
	return func(r *Daemon) {
		r.threshold = d
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Daemon) {
		r.now = now
	}
}

func NewDaemon(store *credentials.Store, platforms []models.Platform, logger *zap.Logger, opts ...Option) *Daemon {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Daemon{
		store:     store,
		platforms: platforms,
		interval:  DefaultInterval,
		threshold: DefaultThreshold,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run sweeps immediately, then on every interval tick until ctx ends.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.SweepOnce(ctx); err != nil {
		d.logger.Warn("token refresh sweep finished with errors", zap.Error(err))
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.SweepOnce(ctx); err != nil {
				d.logger.Warn("token refresh sweep finished with errors", zap.Error(err))
			}
		}
	}
}

// SweepOnce checks every configured platform and refreshes those within
// the threshold. The returned error aggregates per-platform failures; a
// nil return means every platform either refreshed or needed nothing.
func (d *Daemon) SweepOnce(ctx context.Context) error {
	var errs error

	for _, p := range d.platforms {
		if err := d.sweepPlatform(ctx, p); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}

	return errs
}

func (d *Daemon) sweepPlatform(ctx context.Context, p models.Platform) error {
	expiry, err := d.store.Expiry(ctx, p)
	if err != nil {
		// Not connected is the normal state for unused integrations.
		return nil
	}

	if expiry.IsZero() {
		return nil
	}

	ttl := expiry.Sub(d.now())
	if ttl > d.threshold {
		return nil
	}

	d.logger.Info("proactively refreshing token",
		zap.String("platform", p.String()),
		zap.Duration("ttl", ttl))

	if err := d.store.Refresh(ctx, p); err != nil {
		return err
	}

	return nil
}
