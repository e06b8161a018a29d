// Package retry drives fallible remote calls through a shared rate limiter,
// retrying transient failures with exponential backoff and honouring retry
// delays that the server embeds in its error messages.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/ratelimit"
)

// ErrExhausted is matched by the error returned when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError reports that MaxAttempts retryable failures occurred.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exceeded %d retry attempts: %v", e.Attempts, e.Last)
}

// Is makes errors.Is(err, ErrExhausted) hold.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Unwrap exposes the last underlying failure.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// Policy bounds a single Execute call.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy allows five attempts, backing off from one second up to two
// minutes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     120 * time.Second,
	}
}

// Backoff returns the un-jittered exponential delay before the attempt after
// the given one (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		// d <= 0 only on overflow
		if d >= p.MaxBackoff || d <= 0 {
			return p.MaxBackoff
		}
	}
	return min(d, p.MaxBackoff)
}

func (p Policy) clamp(d time.Duration) time.Duration {
	return max(p.InitialBackoff, min(d, p.MaxBackoff))
}

// Source tells where an attempt's delay came from.
type Source string

const (
	SourceNone    Source = "none"
	SourceHinted  Source = "hinted"
	SourceBackoff Source = "backoff"
)

// Attempt describes one failed try and the delay scheduled after it.
type Attempt struct {
	Index  int
	Delay  time.Duration
	Source Source
	Err    error
}

// Limiter is the admission gate consulted before each attempt.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Executor runs calls under a Policy. It holds no per-call state, so one
// Executor may be shared by every goroutine using the same limiter.
type Executor struct {
	limiter  Limiter
	policy   Policy
	classify Classifier
	obs      *observe.Observer

	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(upper time.Duration) time.Duration
	onRetry func(Attempt)
}

// Option customises an Executor.
type Option func(*Executor)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithClassifier swaps the error classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) { e.classify = c }
}

// WithObserver routes retry logs through obs.
func WithObserver(obs *observe.Observer) Option {
	return func(e *Executor) { e.obs = observe.OrNop(obs) }
}

// OnRetry registers a hook called after every failed attempt that will be
// retried, before the delay is slept.
func OnRetry(fn func(Attempt)) Option {
	return func(e *Executor) { e.onRetry = fn }
}

// New creates an Executor gated by limiter. A nil limiter admits everything.
func New(limiter Limiter, opts ...Option) *Executor {
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}
	e := &Executor{
		limiter:  limiter,
		policy:   DefaultPolicy(),
		classify: MessageClassifier,
		obs:      observe.Nop(),
		sleep:    ratelimit.Sleep,
		jitter:   uniformJitter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy { return e.policy }

// Execute runs call until it succeeds, fails fatally or runs out of attempts.
// Fatal errors are returned exactly as call produced them.
func (e *Executor) Execute(ctx context.Context, call func(ctx context.Context) error) error {
	maxAttempts := max(e.policy.MaxAttempts, 1)

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
		last = err

		decision := e.classify(err)
		var delay time.Duration
		var source Source
		switch decision.Kind {
		case Hinted:
			delay = e.policy.clamp(decision.Delay)
			delay += e.jitter(min(2*time.Second, delay/10))
			source = SourceHinted
		case Transient:
			delay = e.policy.Backoff(attempt)
			delay += e.jitter(delay / 10)
			source = SourceBackoff
		default:
			return err
		}

		if attempt == maxAttempts {
			break
		}

		e.obs.Log().Warn().
			Str("component", "retry").
			Str("kind", decision.Kind.String()).
			Int("attempt", attempt).
			Str("delay", delay.String()).
			Err(err).
			Msg("retrying after failure")

		if e.onRetry != nil {
			e.onRetry(Attempt{Index: attempt, Delay: delay, Source: source, Err: err})
		}
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	e.obs.Log().Error().
		Str("component", "retry").
		Int("attempts", maxAttempts).
		Err(last).
		Msg("retry attempts exhausted")
	return &ExhaustedError{Attempts: maxAttempts, Last: last}
}

// Do runs call through e and returns its value.
func Do[T any](ctx context.Context, e *Executor, call func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := call(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// uniformJitter draws from [0, upper).
func uniformJitter(upper time.Duration) time.Duration {
	if upper <= 0 {
		return 0
	}
	return rand.N(upper)
}
