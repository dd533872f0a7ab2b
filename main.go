package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulsedash/dashboard/runner"
	"github.com/pulsedash/dashboard/runner/webrunner"
	"github.com/pulsedash/dashboard/runner/workerrunner"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	opts := runner.ParseOptions()

	instance, err := runnerFactory(opts)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	if err := instance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString(err.Error() + "\n")

		_ = instance.Close(ctx)

		os.Exit(1)
	}

	_ = instance.Close(ctx)
}

func runnerFactory(opts *runner.Options) (runner.Runner, error) {
	switch opts.RunMode {
	case runner.RunModeWeb:
		return webrunner.New(opts)
	case runner.RunModeWorker:
		return workerrunner.New(opts)
	default:
		return nil, runner.ErrInvalidRunMode
	}
}
