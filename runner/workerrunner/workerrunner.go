// Package workerrunner runs the background task worker: the asynq consumer
// handling scheduled token refresh sweeps and remote cache invalidations.
package workerrunner

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/pulsedash/dashboard/config"
	"github.com/pulsedash/dashboard/redis"
	redisconfig "github.com/pulsedash/dashboard/redis/config"
	"github.com/pulsedash/dashboard/redis/tasks"
	"github.com/pulsedash/dashboard/runner"
)

type workerRunner struct {
	app    *runner.App
	server *redis.Server
	mux    *tasks.Handler
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

	redisCfg, err := redisconfig.NewRedisConfig()
	if err != nil {
		return nil, err
	}

	app, err := runner.NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}

	server, err := redis.NewServer(redisCfg, logger)
	if err != nil {
		return nil, err
	}

	handler := tasks.NewHandler(app.Daemon, app.Orchestrator, logger)

	return &workerRunner{app: app, server: server, mux: handler}, nil
}

func (w *workerRunner) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux.Mux()); err != nil {
		return err
	}

	// The scheduler runs so any task work dispatched through the
	// orchestrator can execute.
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.app.Scheduler.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		return w.server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (w *workerRunner) Close(ctx context.Context) error {
	return w.app.Close(ctx)
}
