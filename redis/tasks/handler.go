package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Sweeper runs one proactive token refresh pass.
type Sweeper interface {
	SweepOnce(ctx context.Context) error
}

// Invalidator drops cached dashboard data.
type Invalidator interface {
	InvalidateCache(clientID, dependency string) int
}

// Handler routes asynq tasks to the refresh daemon and the cache.
type Handler struct {
	sweeper     Sweeper
	invalidator Invalidator
	logger      *zap.Logger
	taskTimeout time.Duration
}

type HandlerOption func(*Handler)

// WithTaskTimeout bounds the processing time of a single task.
func WithTaskTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = d
	}
}

func NewHandler(sweeper Sweeper, invalidator Invalidator, logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Handler{
		sweeper:     sweeper,
		invalidator: invalidator,
		logger:      logger,
		taskTimeout: 2 * time.Minute,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Mux returns the serve mux routing every known task type to this handler.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTokenRefresh, h.ProcessTask)
	mux.HandleFunc(TypeCacheInvalidate, h.ProcessTask)
	mux.HandleFunc(TypeHealthCheck, h.ProcessTask)

	return mux
}

// ProcessTask dispatches a task by type.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeTokenRefresh:
		return h.processTokenRefresh(ctx)
	case TypeCacheInvalidate:
		return h.processCacheInvalidate(ctx, task)
	case TypeHealthCheck:
		return nil
	default:
		return fmt.Errorf("unknown task type: %s", task.Type())
	}
}

func (h *Handler) processTokenRefresh(ctx context.Context) error {
	if err := h.sweeper.SweepOnce(ctx); err != nil {
		// Per-platform failures are already aggregated; surface them so
		// asynq retries the sweep.
		h.logger.Warn("token refresh sweep failed", zap.Error(err))

		return err
	}

	return nil
}

func (h *Handler) processCacheInvalidate(_ context.Context, task *asynq.Task) error {
	var payload CacheInvalidatePayload

	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	dropped := h.invalidator.InvalidateCache(payload.ClientID, payload.Dependency)

	h.logger.Info("cache invalidated",
		zap.String("client_id", payload.ClientID),
		zap.String("dependency", payload.Dependency),
		zap.Int("dropped", dropped))

	return nil
}
