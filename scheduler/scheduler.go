// Package scheduler dispatches units of upstream work by priority while
// bounding how many run at once. Callers receive a handle that settles when
// their work completes or fails; queued work can be rejected wholesale, but
// work already started always runs to completion or its own timeout.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pulsedash/dashboard/pkg/metrics"
)

// ErrCancelled settles the handles of requests rejected before dispatch.
var ErrCancelled = errors.New("scheduled request cancelled")

// Priority orders dispatch; lower values are served first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

type Work func(ctx context.Context) (any, error)

// Handle is the caller-visible pending result of a scheduled request.
type Handle struct {
	ID string

	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newHandle() *Handle {
	return &Handle{ID: uuid.New().String(), done: make(chan struct{})}
}

func (h *Handle) settle(val any, err error) {
	h.once.Do(func() {
		h.val = val
		h.err = err
		close(h.done)
	})
}

// Wait blocks until the request settles or the caller's context ends.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.val, h.err
	}
}

type request struct {
	priority   Priority
	work       Work
	handle     *Handle
	enqueuedAt time.Time
	seq        uint64
	index      int
}

// requestHeap orders by priority, then enqueue sequence so equal
// priorities dispatch in arrival order.
type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}

	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	req := x.(*request)
	req.index = len(*h)
	*h = append(*h, req)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return req
}

// Scheduler is safe for concurrent use. Run must be started exactly once.
type Scheduler struct {
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger

	mu       sync.Mutex
	queue    requestHeap
	inFlight int
	seq      uint64

	notify chan struct{}
}

type Option func(*Scheduler)

// WithRateLimiter bounds the rate at which requests are started, on top of
// the concurrency cap.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(s *Scheduler) {
		s.limiter = limiter
	}
}

func New(concurrency int, logger *zap.Logger, opts ...Option) *Scheduler {
	if concurrency <= 0 {
		concurrency = 3
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		concurrency: concurrency,
		logger:      logger,
		notify:      make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Schedule inserts work into the priority queue and returns its handle.
func (s *Scheduler) Schedule(work Work, priority Priority) *Handle {
	handle := newHandle()

	s.mu.Lock()

	s.seq++

	heap.Push(&s.queue, &request{
		priority:   priority,
		work:       work,
		handle:     handle,
		enqueuedAt: time.Now(),
		seq:        s.seq,
	})

	metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))

	s.mu.Unlock()

	s.wake()

	return handle
}

// Clear rejects every queued, not-yet-started request with ErrCancelled.
// In-flight requests are not interrupted.
func (s *Scheduler) Clear() {
	s.mu.Lock()

	rejected := make([]*request, len(s.queue))
	copy(rejected, s.queue)

	s.queue = s.queue[:0]
	metrics.SchedulerQueueDepth.Set(0)

	s.mu.Unlock()

	for _, req := range rejected {
		req.handle.settle(nil, ErrCancelled)
	}

	if len(rejected) > 0 {
		s.logger.Info("cleared scheduled requests", zap.Int("count", len(rejected)))
	}
}

// QueueLen reports how many requests await dispatch.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Run drives dispatch until ctx ends, then rejects whatever is still
// queued. Started work keeps running; its handles settle normally.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.dispatch(ctx)

		select {
		case <-ctx.Done():
			s.Clear()

			return ctx.Err()
		case <-s.notify:
		}
	}
}

// dispatch starts queued requests while capacity remains, without waiting
// for their completion.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		s.mu.Lock()

		if s.inFlight >= s.concurrency || len(s.queue) == 0 {
			s.mu.Unlock()

			return
		}

		req := heap.Pop(&s.queue).(*request)
		s.inFlight++

		metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))
		metrics.SchedulerInFlight.Set(float64(s.inFlight))

		s.mu.Unlock()

		go s.execute(ctx, req)
	}
}

func (s *Scheduler) execute(ctx context.Context, req *request) {
	defer func() {
		s.mu.Lock()
		s.inFlight--
		metrics.SchedulerInFlight.Set(float64(s.inFlight))
		s.mu.Unlock()

		s.wake()
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			req.handle.settle(nil, err)

			return
		}
	}

	s.logger.Debug("dispatching request",
		zap.String("id", req.handle.ID),
		zap.String("priority", req.priority.String()),
		zap.Duration("queued", time.Since(req.enqueuedAt)))

	val, err := req.work(ctx)
	req.handle.settle(val, err)
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
