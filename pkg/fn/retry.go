package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// DefaultRetry is used for calls to history storage.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Jitter:      true,
}

func (o RetryOpts) backoff(wait time.Duration) time.Duration {
	d := wait
	if o.Jitter {
		d = time.Duration(float64(wait) * (0.5 + rand.Float64()))
	}
	return min(d, o.MaxWait)
}

// Retry calls f up to MaxAttempts times with exponential backoff.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]
	wait := opts.InitialWait
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt == opts.MaxAttempts {
			return result
		}
		if opts.Retryable != nil && !opts.Retryable(result.err) {
			return result
		}
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(opts.backoff(wait)):
		}
		wait = min(wait*2, opts.MaxWait)
	}
	return result
}

// RetryStage wraps a Stage with Retry.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
