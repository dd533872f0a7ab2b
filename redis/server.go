package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/redis/config"
	"github.com/pulsedash/dashboard/redis/tasks"
)

// DefaultRefreshSchedule runs the proactive token sweep twice an hour.
const DefaultRefreshSchedule = "@every 30m"

// Server wraps the asynq consumer plus the periodic scheduler that enqueues
// the recurring token refresh sweep.
type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	cfg       *config.RedisConfig
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewServer creates the task queue consumer with strict queue priorities.
func NewServer(cfg *config.RedisConfig, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Workers,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			if n >= cfg.MaxRetries {
				logger.Warn("task exhausted retries",
					zap.String("type", task.Type()),
					zap.Error(err))

				return -1 * time.Second
			}

			delay := time.Duration(1<<uint(n)) * time.Second
			if delay > cfg.RetryInterval {
				delay = cfg.RetryInterval
			}

			return delay
		},
		Queues:         cfg.QueuePriorities,
		StrictPriority: true,
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})

	return &Server{
		server:    srv,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Start begins consuming tasks with the given mux and registers the
// recurring token refresh sweep on the critical queue.
func (s *Server) Start(mux *asynq.ServeMux) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}

	entryID, err := s.scheduler.Register(DefaultRefreshSchedule, tasks.NewTokenRefreshTask(), asynq.Queue("critical"))
	if err != nil {
		return fmt.Errorf("failed to register refresh schedule: %w", err)
	}

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.logger.Info("task server started",
		zap.String("refresh_schedule", DefaultRefreshSchedule),
		zap.String("refresh_entry", entryID))

	return nil
}

// Shutdown drains in-flight tasks and stops the scheduler.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Shutdown()
	s.server.Shutdown()

	s.logger.Info("task server stopped")

	return nil
}
