// Package runner selects and assembles the process run modes: the web API
// server and the background task worker.
package runner

import (
	"context"
	"errors"
	"flag"

	"go.uber.org/zap"
)

const (
	RunModeWeb = iota + 1
	RunModeWorker
)

var ErrInvalidRunMode = errors.New("invalid run mode")

// Runner is one process personality.
type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// Options are the command line switches; everything else comes from the
// environment through the config package.
type Options struct {
	RunMode int
	Debug   bool

	// Addr overrides the configured HTTP listen address when non-empty.
	Addr string
}

func ParseOptions() *Options {
	opts := &Options{RunMode: RunModeWeb}

	var worker bool

	flag.BoolVar(&worker, "worker", false, "run the background task worker instead of the web server")
	flag.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	flag.StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides ADDR)")
	flag.Parse()

	if worker {
		opts.RunMode = RunModeWorker
	}

	return opts
}

// NewLogger builds the process logger.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
