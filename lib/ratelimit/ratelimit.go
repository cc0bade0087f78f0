package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between outbound requests plus a
// randomized jitter on top. One Limiter is shared by every fetch worker in a
// run: the budget is global, not per worker.
type Limiter struct {
	bucket *rate.Limiter
	jitter time.Duration

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLimiter(minInterval, jitter time.Duration) *Limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limiter{
		bucket: rate.NewLimiter(limit, 1),
		jitter: jitter,
		sleep:  sleepContext,
	}
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

// Wait blocks until the next request slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	err := l.bucket.Wait(ctx)
	if err != nil {
		return err
	}
	if l.jitter <= 0 {
		return nil
	}
	return l.sleep(ctx, time.Duration(rand.Int63n(int64(l.jitter))))
}

// RetryPolicy bounds the exponential backoff applied to retryable fetch
// failures. Exceeding MaxRetries surfaces the last error to the caller, which
// downgrades it to a per-identifier failure.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Second * 2,
		MaxInterval:     time.Minute,
		MaxRetries:      4,
	}
}

// Permanent marks an error as non-retryable, aborting the backoff loop
// immediately. Auth expiry and parse failures go through here: retrying
// cannot heal either.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op under the policy's exponential backoff until it succeeds,
// returns a Permanent error, exhausts the retry ceiling, or ctx is done.
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	return backoff.RetryNotify(
		op,
		backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxRetries), ctx),
		func(err error, next time.Duration) {
			slog.WarnContext(ctx, "retrying after failure", "err", err, "next_attempt_in", next)
		},
	)
}
