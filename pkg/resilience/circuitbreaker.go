// Package resilience guards calls to the history store and other backends
// with a circuit breaker, and rations API traffic with per-client limiters.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/obdpulse/obdpulse/pkg/fn"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // rejecting calls
	StateHalfOpen              // allowing probe calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	Name string
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed while half-open.
	HalfOpenMax int
	// IsFailure classifies errors. Nil counts every error except
	// context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called with the lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)
}

var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker is a closed/open/half-open circuit breaker.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a Breaker, filling zero options from DefaultBreakerOpts.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState moves open to half-open once the timeout elapsed. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.halfOpenCount = 0
	if to == StateOpen {
		b.openedAt = b.now()
		b.failures = 0
	}
	if from != to && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.opts.Name, from, to)
	}
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentState() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			return ErrCircuitOpen
		}
		b.halfOpenCount++
	}
	return nil
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil && b.opts.IsFailure(err) {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.transition(StateOpen)
		}
		return
	}
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
}

// Call runs f through the breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := f(ctx)
	b.release(err)
	return err
}

// CallResult is Call for functions returning fn.Result.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if err := b.acquire(); err != nil {
		return fn.Err[T](err)
	}
	result := f(ctx)
	_, err := result.Unwrap()
	b.release(err)
	return result
}

// BreakerStage wraps a stage with b.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return CallResult(b, ctx, func(ctx context.Context) fn.Result[Out] {
			return stage(ctx, in)
		})
	}
}
