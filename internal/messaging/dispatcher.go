package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/personaflow/whatsapp-relay/internal/resilience"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

// Dispatch outcomes reported to a DispatchObserver.
const (
	DispatchSent     = "sent"
	DispatchRejected = "rejected"
	DispatchFailed   = "failed"
)

// dispatchAttempts is the total number of delivery attempts.
const dispatchAttempts = 3

// MessageSender makes one delivery attempt.
type MessageSender interface {
	SendMessage(ctx context.Context, to, from, body string) (string, error)
}

type DispatchObserver interface {
	ObserveDispatch(outcome string)
}

// Dispatcher delivers replies with bounded retries and reports success as a
// bool so callers never handle delivery errors.
type Dispatcher struct {
	sender   MessageSender
	prefix   string
	policy   resilience.Policy
	observer DispatchObserver
	logger   *logging.Logger
}

type DispatcherOption func(*Dispatcher)

func WithDispatchSleep(sleep func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) {
		d.policy.Sleep = sleep
	}
}

func WithDispatchObserver(o DispatchObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

func NewDispatcher(sender MessageSender, prefix string, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if sender == nil {
		panic("messaging: sender cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		sender: sender,
		prefix: prefix,
		policy: resilience.Policy{
			MaxRetries: dispatchAttempts - 1,
			BaseDelay:  resilience.DefaultBaseDelay,
			Retryable:  resilience.RetryAll,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) observe(outcome string) {
	if d.observer != nil {
		d.observer.ObserveDispatch(outcome)
	}
}

// Send delivers body from one channel address to another. Both addresses
// must carry the channel prefix. Every failure is retried; false means the
// last attempt failed or the input was rejected.
func (d *Dispatcher) Send(ctx context.Context, to, from, body string) (ok bool) {
	logger := logging.FromContext(ctx, d.logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("reply dispatch panicked", "panic", fmt.Sprint(r))
			d.observe(DispatchFailed)
			ok = false
		}
	}()

	body = strings.TrimSpace(body)
	if to == "" || from == "" || body == "" {
		logger.Error("reply dispatch missing required parameters")
		d.observe(DispatchRejected)
		return false
	}
	if !HasChannelPrefix(to, d.prefix) || !HasChannelPrefix(from, d.prefix) {
		logger.Error("reply dispatch invalid channel address", "to", to, "from", from)
		d.observe(DispatchRejected)
		return false
	}

	policy := d.policy
	policy.OnRetry = func(retry int, delay time.Duration, err error) {
		logger.Warn("retrying reply dispatch", "retry", retry+1, "delay_ms", delay.Milliseconds(), "error", err)
	}
	sid, err := resilience.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return d.sender.SendMessage(ctx, to, from, body)
	})
	if err != nil {
		logger.Error("reply dispatch failed", "to", to, "error", err)
		d.observe(DispatchFailed)
		return false
	}
	logger.Info("reply sent", "to", to, "provider_sid", sid)
	d.observe(DispatchSent)
	return true
}
