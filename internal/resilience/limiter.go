package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

const (
	// DefaultQuota matches 80% of HubSpot's 100 requests per 10 seconds.
	DefaultQuota  = 8
	DefaultWindow = time.Second

	defaultMaxChecks = 30
)

// ErrWaitExhausted is returned when a caller could not get a slot within the
// bounded number of re-checks.
var ErrWaitExhausted = errors.New("resilience: rate limit wait exhausted")

// WindowCounter tracks calls within the current window. Acquire takes a slot
// and returns zero, or returns how long to wait before asking again.
type WindowCounter interface {
	Acquire(ctx context.Context) (time.Duration, error)
}

// WaitObserver receives the time callers spent suspended in Wait.
type WaitObserver interface {
	ObserveThrottleWait(seconds float64)
}

// Limiter suspends callers until the guarded service can take another call.
// The counter's read-modify-write is atomic; the check, wait and re-check
// sequence is not, so concurrent waiters race for freed slots.
type Limiter struct {
	counter   WindowCounter
	maxChecks int
	sleep     func(ctx context.Context, d time.Duration) error
	observer  WaitObserver
	logger    *logging.Logger
}

// LimiterOption customizes a Limiter.
type LimiterOption func(*Limiter)

// WithMaxChecks bounds how many times a waiting caller re-evaluates the window.
func WithMaxChecks(n int) LimiterOption {
	return func(l *Limiter) {
		if n > 0 {
			l.maxChecks = n
		}
	}
}

// WithWaitObserver reports suspended time to o.
func WithWaitObserver(o WaitObserver) LimiterOption {
	return func(l *Limiter) {
		l.observer = o
	}
}

// WithLimiterLogger sets the logger used for counter failures.
func WithLimiterLogger(logger *logging.Logger) LimiterOption {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLimiter builds a Limiter over counter.
func NewLimiter(counter WindowCounter, opts ...LimiterOption) *Limiter {
	if counter == nil {
		panic("resilience: window counter cannot be nil")
	}
	l := &Limiter{
		counter:   counter,
		maxChecks: defaultMaxChecks,
		sleep:     SleepContext,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until a slot is available. Counter failures fail open because
// throttling is advisory.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if l.observer != nil {
			l.observer.ObserveThrottleWait(time.Since(start).Seconds())
		}
	}()
	for check := 0; check < l.maxChecks; check++ {
		wait, err := l.counter.Acquire(ctx)
		if err != nil {
			l.logger.Warn("rate limiter counter unavailable; proceeding", "error", err)
			return nil
		}
		if wait <= 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d checks", ErrWaitExhausted, l.maxChecks)
}

// MemoryWindow is the process-wide fixed window: a window opens on the first
// call after the previous one has elapsed.
type MemoryWindow struct {
	mu     sync.Mutex
	quota  int
	window time.Duration
	start  time.Time
	count  int
	now    func() time.Time
}

// NewMemoryWindow returns a counter allowing quota calls per window.
func NewMemoryWindow(quota int, window time.Duration) *MemoryWindow {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryWindow{
		quota:  quota,
		window: window,
		start:  time.Now(),
		now:    time.Now,
	}
}

// Acquire implements WindowCounter.
func (w *MemoryWindow) Acquire(context.Context) (time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	elapsed := now.Sub(w.start)
	if elapsed >= w.window {
		w.count = 0
		w.start = now
		elapsed = 0
	}
	if w.count >= w.quota {
		return w.window - elapsed, nil
	}
	w.count++
	return 0, nil
}
