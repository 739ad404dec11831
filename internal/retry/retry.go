// Package retry provides the bounded exponential backoff used when the agent
// re-establishes its MQTT session, logind connection and inhibitor locks
// after a resume.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrInvalidPolicy is returned when a Policy cannot produce a bounded schedule.
var ErrInvalidPolicy = errors.New("retry: invalid policy")

// Upper bounds accepted by Validate. They keep every delay and their sum
// well inside time.Duration.
const (
	MaxAttemptsLimit = 20
	MaxMultiplier    = 10
	MaxTotalWait     = 24 * time.Hour
)

// Policy describes a bounded retry schedule.
//
// The first attempt runs immediately. Attempt n (n >= 2) waits
// BaseDelay * Multiplier^(n-2) before running.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy is three attempts starting at 500ms and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
	}
}

// Validate reports whether the policy is usable.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1 || p.MaxAttempts > MaxAttemptsLimit:
		return fmt.Errorf("%w: max attempts %d not in [1, %d]", ErrInvalidPolicy, p.MaxAttempts, MaxAttemptsLimit)
	case p.BaseDelay <= 0:
		return fmt.Errorf("%w: base delay %v not positive", ErrInvalidPolicy, p.BaseDelay)
	case !(p.Multiplier >= 1 && p.Multiplier <= MaxMultiplier):
		return fmt.Errorf("%w: multiplier %v not in [1, %d]", ErrInvalidPolicy, p.Multiplier, MaxMultiplier)
	}

	// Summed in float64 so an oversized schedule is caught before any
	// time.Duration conversion can overflow.
	var total float64
	d := float64(p.BaseDelay)
	for i := 1; i < p.MaxAttempts; i++ {
		total += d
		d *= p.Multiplier
	}
	if total > float64(MaxTotalWait) {
		return fmt.Errorf("%w: total wait exceeds %v", ErrInvalidPolicy, MaxTotalWait)
	}
	return nil
}

// Delays returns the waits between attempts, in order.
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts < 2 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	d := float64(p.BaseDelay)
	for i := 1; i < p.MaxAttempts; i++ {
		delays = append(delays, time.Duration(d))
		d *= p.Multiplier
	}
	return delays
}

// MaxWait is the sum of all delays, the longest Do can sleep. It is only
// meaningful for a policy that passes Validate.
func (p Policy) MaxWait() time.Duration {
	var total time.Duration
	for _, d := range p.Delays() {
		total += d
	}
	return total
}

// Notify is called after a failed attempt, before waiting delay.
type Notify func(attempt int, err error, delay time.Duration)

// Do runs op until it succeeds, the attempts are exhausted or ctx is done.
// The last error from op is returned when every attempt fails.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, notify)
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxWait() + p.BaseDelay,
	}

	attempt := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)), //nolint:gosec // validated >= 1
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, d time.Duration) {
			notify(attempt, err, d)
		}))
	}

	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op(ctx)
	}, opts...)
}
