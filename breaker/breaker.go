// Package breaker wraps calls to one external platform with a circuit
// breaker and bounded retry. The breaker trips after a configurable run of
// failures, short-circuits while open, and probes with a single trial call
// after the recovery timeout elapses.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/pkg/metrics"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// circuit is open and the recovery timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config carries the tunables. Zero values fall back to the defaults; the
// same set is used for every platform.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	MaxAttempts      int
	BaseDelay        time.Duration
	Multiplier       float64
	MaxDelay         time.Duration

	// Retryable classifies an error from the wrapped call. When nil,
	// errors advertising a Retryable() bool method are consulted and
	// timeouts are considered transient.
	Retryable func(error) bool
}

func (c *Config) withDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}

	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = time.Minute
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}

	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}

	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}

	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}

	if c.Retryable == nil {
		c.Retryable = defaultRetryable
	}
}

type retryableError interface {
	Retryable() bool
}

func defaultRetryable(err error) bool {
	var r retryableError
	if errors.As(err, &r) {
		return r.Retryable()
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// Breaker is one circuit, owned by exactly one external platform. It is
// safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Breaker)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithSleep overrides the backoff sleep, used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Breaker) {
		b.sleep = sleep
	}
}

func New(name string, cfg Config, logger *zap.Logger, opts ...Option) *Breaker {
	cfg.withDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With(zap.String("breaker", name)),
		now:    time.Now,
		sleep:  sleepContext,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State reports the current state, applying the lazy open -> half-open
// check so observers see the same answer the next call would.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
		return StateHalfOpen
	}

	return b.state
}

// Execute runs fn through the circuit. Inside the closed and half-open
// paths it retries transient failures with exponential backoff and up to
// 10% jitter. Exhausting the retry budget counts as exactly one failure
// toward the trip threshold; a non-retryable error fails fast but still
// counts. The last error is returned to the caller.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	var (
		val     any
		lastErr error
	)

	for attempt := 0; attempt < b.cfg.MaxAttempts; attempt++ {
		val, lastErr = fn(ctx)
		if lastErr == nil {
			b.onSuccess()

			return val, nil
		}

		if !b.cfg.Retryable(lastErr) {
			break
		}

		if attempt == b.cfg.MaxAttempts-1 {
			break
		}

		delay := b.backoff(attempt)

		b.logger.Debug("retrying after transient failure",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		if err := b.sleep(ctx, delay); err != nil {
			lastErr = err

			break
		}
	}

	b.onFailure()

	return nil, lastErr
}

func (b *Breaker) backoff(attempt int) time.Duration {
	delay := float64(b.cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= b.cfg.Multiplier
	}

	if max := float64(b.cfg.MaxDelay); delay > max {
		delay = max
	}

	// Up to 10% jitter so synchronized callers do not retry in lockstep.
	delay += delay * 0.1 * rand.Float64()

	return time.Duration(delay)
}

// allow admits the call or rejects it while the circuit is open. The
// open -> half-open transition is checked lazily here, not via a timer.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if b.now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.transition(StateHalfOpen)

		return nil
	}

	metrics.BreakerRejections.WithLabelValues(b.name).Inc()

	return fmt.Errorf("%w: %s unavailable", ErrCircuitOpen, b.name)
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == StateHalfOpen {
		b.transition(StateOpen)

		return
	}

	if b.state == StateClosed && b.failures >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
	}
}

// transition records a state change. Caller holds the lock.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}

	b.logger.Info("circuit state change",
		zap.String("from", b.state.String()),
		zap.String("to", next.String()),
		zap.Int("failures", b.failures))

	b.state = next

	metrics.BreakerTransitions.WithLabelValues(b.name, next.String()).Inc()
}
