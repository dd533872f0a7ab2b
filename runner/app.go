package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/time/rate"

	"github.com/pulsedash/dashboard/breaker"
	"github.com/pulsedash/dashboard/cache"
	"github.com/pulsedash/dashboard/config"
	"github.com/pulsedash/dashboard/credentials"
	"github.com/pulsedash/dashboard/deduper"
	"github.com/pulsedash/dashboard/internal/database"
	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/orchestrator"
	"github.com/pulsedash/dashboard/pkg/encryption"
	"github.com/pulsedash/dashboard/platform"
	"github.com/pulsedash/dashboard/platform/facebook"
	"github.com/pulsedash/dashboard/platform/gohighlevel"
	"github.com/pulsedash/dashboard/platform/googleads"
	"github.com/pulsedash/dashboard/platform/sheets"
	"github.com/pulsedash/dashboard/refresher"
	"github.com/pulsedash/dashboard/scheduler"
)

// goHighLevelEndpoint is the LeadConnector OAuth 2.0 endpoint pair.
var goHighLevelEndpoint = oauth2.Endpoint{
	AuthURL:  "https://marketplace.gohighlevel.com/oauth/chooselocation",
	TokenURL: "https://services.leadconnectorhq.com/oauth/token",
}

// App holds the composed service graph shared by the run modes. Everything
// is wired once at process start.
type App struct {
	Cfg    *config.Config
	Logger *zap.Logger

	DB           *database.Db
	Store        *credentials.Store
	Daemon       *refresher.Daemon
	Scheduler    *scheduler.Scheduler
	Orchestrator *orchestrator.Service
	OAuthConfigs map[models.Platform]*oauth2.Config
}

// NewApp builds the full dependency graph from configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.New(cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}

	cipher, err := encryption.New([]byte(cfg.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	oauthConfigs := buildOAuthConfigs(cfg)

	exchanger := refresher.NewExchanger(oauthConfigs, logger)

	store := credentials.New(db, cipher, logger,
		credentials.WithRefreshFunc(exchanger.Refresh))

	daemon := refresher.NewDaemon(store, models.OAuthPlatforms(), logger,
		refresher.WithInterval(cfg.Refresh.Interval),
		refresher.WithThreshold(cfg.Refresh.Threshold))

	var schedOpts []scheduler.Option
	if cfg.Scheduler.RateLimit > 0 {
		schedOpts = append(schedOpts, scheduler.WithRateLimiter(
			rate.NewLimiter(rate.Limit(cfg.Scheduler.RateLimit), 1)))
	}

	sched := scheduler.New(cfg.Scheduler.Concurrency, logger, schedOpts...)

	fetchers := map[models.Platform]platform.Fetcher{
		models.PlatformFacebook:    facebook.New(logger),
		models.PlatformGoogleAds:   googleads.New(cfg.OAuth.GoogleDeveloperToken, logger),
		models.PlatformGoHighLevel: gohighlevel.New(logger),
		models.PlatformSheets:      sheets.New(logger),
	}

	orch := orchestrator.New(
		db,
		store,
		fetchers,
		cache.New(cfg.Cache.Capacity),
		deduper.New(),
		sched,
		breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
			MaxAttempts:      cfg.Breaker.MaxAttempts,
			BaseDelay:        cfg.Breaker.BaseDelay,
			MaxDelay:         cfg.Breaker.MaxDelay,
		},
		logger,
		orchestrator.WithMaxAge(cfg.Cache.MaxAge),
	)

	return &App{
		Cfg:          cfg,
		Logger:       logger,
		DB:           db,
		Store:        store,
		Daemon:       daemon,
		Scheduler:    sched,
		Orchestrator: orch,
		OAuthConfigs: oauthConfigs,
	}, nil
}

// Close releases the database connection.
func (a *App) Close(context.Context) error {
	sqlDB, err := a.DB.Engine.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql db: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func buildOAuthConfigs(cfg *config.Config) map[models.Platform]*oauth2.Config {
	configs := make(map[models.Platform]*oauth2.Config)

	if cfg.OAuth.Facebook.Configured() {
		configs[models.PlatformFacebook] = &oauth2.Config{
			ClientID:     cfg.OAuth.Facebook.ClientID,
			ClientSecret: cfg.OAuth.Facebook.ClientSecret,
			RedirectURL:  cfg.OAuth.Facebook.RedirectURL,
			Scopes:       []string{"ads_read"},
			Endpoint:     endpoints.Facebook,
		}
	}

	if cfg.OAuth.GoogleAds.Configured() {
		configs[models.PlatformGoogleAds] = &oauth2.Config{
			ClientID:     cfg.OAuth.GoogleAds.ClientID,
			ClientSecret: cfg.OAuth.GoogleAds.ClientSecret,
			RedirectURL:  cfg.OAuth.GoogleAds.RedirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/adwords"},
			Endpoint:     endpoints.Google,
		}
	}

	if cfg.OAuth.GoHighLevel.Configured() {
		configs[models.PlatformGoHighLevel] = &oauth2.Config{
			ClientID:     cfg.OAuth.GoHighLevel.ClientID,
			ClientSecret: cfg.OAuth.GoHighLevel.ClientSecret,
			RedirectURL:  cfg.OAuth.GoHighLevel.RedirectURL,
			Scopes:       []string{"opportunities.readonly"},
			Endpoint:     goHighLevelEndpoint,
		}
	}

	if cfg.OAuth.Sheets.Configured() {
		configs[models.PlatformSheets] = &oauth2.Config{
			ClientID:     cfg.OAuth.Sheets.ClientID,
			ClientSecret: cfg.OAuth.Sheets.ClientSecret,
			RedirectURL:  cfg.OAuth.Sheets.RedirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/spreadsheets.readonly"},
			Endpoint:     endpoints.Google,
		}
	}

	return configs
}
