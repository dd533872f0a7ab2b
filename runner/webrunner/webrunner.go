// Package webrunner runs the web API process: the HTTP server, the request
// scheduler, and the in-process token refresh daemon.
package webrunner

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/pulsedash/dashboard/config"
	"github.com/pulsedash/dashboard/runner"
	"github.com/pulsedash/dashboard/web"
	"github.com/pulsedash/dashboard/web/handlers"
)

type webRunner struct {
	app    *runner.App
	server *web.Server
}

func New(opts *runner.Options) (runner.Runner, error) {
	logger, err := runner.NewLogger(opts.Debug)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}

	app, err := runner.NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}

	dashboard := handlers.NewDashboardHandler(app.Orchestrator, logger)
	integration := handlers.NewIntegrationHandler(app.Store, app.Orchestrator, app.OAuthConfigs, cfg.RedirectAfterConnect, logger)

	server := web.New(cfg.Addr, dashboard, integration, logger)

	return &webRunner{app: app, server: server}, nil
}

func (w *webRunner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.app.Scheduler.Run(ctx)
	})

	g.Go(func() error {
		return w.app.Daemon.Run(ctx)
	})

	g.Go(func() error {
		return w.server.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (w *webRunner) Close(ctx context.Context) error {
	return w.app.Close(ctx)
}
