// Package retry implements the bounded exponential backoff applied to
// rate-limited calls. Only RATE_LIMITED errors are retried.
package retry

import (
	"context"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/cenkalti/backoff/v5"
)

// Class selects the backoff schedule for a call.
type Class string

const (
	ClassPost     Class = "post"
	ClassGenerate Class = "generate"
	ClassRead     Class = "read"
	// ClassAuth calls are never retried.
	ClassAuth Class = "auth"
)

// Policy is a bounded exponential schedule: MaxRetries sleeps of
// BaseDelay, BaseDelay*Multiplier, ... each capped at MaxDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// Delays returns the full sleep schedule.
func (p Policy) Delays() []time.Duration {
	if p.MaxRetries <= 0 {
		return nil
	}
	b := p.newBackOff()
	out := make([]time.Duration, 0, p.MaxRetries)
	for i := 0; i < p.MaxRetries; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(float64(p.BaseDelay) * pow(multiplier, p.MaxRetries))
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         maxDelay,
	}
	b.Reset()
	return b
}

func pow(base float64, n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= base
	}
	return out
}

// Policies holds the schedule for each call class.
type Policies struct {
	Post     Policy
	Generate Policy
	Read     Policy
}

// PoliciesFromConfig builds the per-class schedules.
func PoliciesFromConfig(cfg *config.RetryConfig) Policies {
	mk := func(base time.Duration) Policy {
		return Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  base,
			Multiplier: cfg.Multiplier,
			MaxDelay:   cfg.MaxDelay,
		}
	}
	return Policies{
		Post:     mk(cfg.PostBase),
		Generate: mk(cfg.GenerateBase),
		Read:     mk(cfg.ReadBase),
	}
}

// DefaultPolicies mirrors the config defaults.
func DefaultPolicies() Policies {
	return PoliciesFromConfig(&config.RetryConfig{
		MaxRetries:   3,
		PostBase:     30 * time.Second,
		GenerateBase: 5 * time.Second,
		ReadBase:     5 * time.Second,
		Multiplier:   2,
		MaxDelay:     2 * time.Minute,
	})
}

// For returns the policy of a class; auth gets a zero-retry policy.
func (p Policies) For(class Class) Policy {
	switch class {
	case ClassPost:
		return p.Post
	case ClassGenerate:
		return p.Generate
	case ClassRead:
		return p.Read
	default:
		return Policy{}
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Hook is told about every sleep before it happens.
type Hook func(attempt int, delay time.Duration, err error)

// Do runs fn, retrying RATE_LIMITED failures along the policy schedule.
// A server Retry-After longer than the scheduled delay is honored, capped at
// MaxDelay. When every attempt is throttled the result is RATE_LIMIT_EXHAUSTED
// wrapping the last error; no sleep follows the final attempt.
func Do[T any](ctx context.Context, p Policy, sleep Sleeper, hook Hook, fn func(context.Context) (T, error)) (T, error) {
	if sleep == nil {
		sleep = SleepContext
	}
	delays := p.Delays()

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !apperrors.HasCode(err, apperrors.CodeRateLimited) {
			return result, err
		}
		if attempt >= len(delays) {
			var zero T
			exhausted := apperrors.NewAppErrorf(apperrors.CodeRateLimitExhausted, err,
				"still rate limited after %d attempts", attempt+1)
			return zero, exhausted
		}

		delay := delays[attempt]
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.RetryAfter > delay {
			delay = appErr.RetryAfter
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		if hook != nil {
			hook(attempt+1, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			var zero T
			return zero, serr
		}
	}
}
