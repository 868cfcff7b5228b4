package faults

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls the exponential backoff applied to transient
// upstream failures. Recovery is local to the integration layer only;
// non-retryable faults propagate to the workflow loop unchanged.
type RetryConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      int
}

// DefaultRetryConfig returns the documented policy: base 1s, doubling,
// capped at 30s, at most 3 retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
		MaxRetries:      3,
	}
}

// Retryable reports whether err is a transient failure the integration
// layer may retry: upstream errors, timeouts, and faults explicitly marked
// recoverable. Everything else is permanent here.
func Retryable(err error) bool {
	f := AsFault(err)
	if f == nil {
		return false
	}
	switch f.Code {
	case CodeUpstream, CodeTimeout:
		return true
	}
	return f.Recoverable
}

// Retry runs op with exponential backoff until it succeeds, exhausts
// cfg.MaxRetries, hits a non-retryable error, or ctx is done. The last
// error is returned unchanged so fault codes survive retry exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.Multiplier = cfg.Multiplier
	policy.MaxInterval = cfg.MaxInterval
	policy.MaxElapsedTime = 0 // bounded by MaxRetries, not wall time

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(cfg.MaxRetries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
