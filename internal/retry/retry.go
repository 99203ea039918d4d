// Package retry wraps per-call retry policy and the worker-level circuit
// breaker used by the pipeline workers.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"callwatch/internal/services"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 5 * time.Second
	defaultMaxRetries      = 3
)

// Policy controls how many times an operation is retried and how long the
// waits between attempts grow.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
}

// DefaultPolicy returns the retry policy the workers use unless configured
// otherwise.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		MaxRetries:      defaultMaxRetries,
	}
}

func (p Policy) normalized() Policy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaultMaxInterval
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Do runs op, retrying transient failures with exponential backoff until the
// policy's retry budget is exhausted or ctx is cancelled. Failures that are
// not transient (see services.IsTransient) abort immediately.
func Do(ctx context.Context, policy Policy, op func() error) error {
	policy = policy.normalized()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialInterval
	bo.MaxInterval = policy.MaxInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !services.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(
		wrapped,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(policy.MaxRetries)), ctx),
	)
}
