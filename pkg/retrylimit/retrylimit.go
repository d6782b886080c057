// Package retrylimit provides a bounded retry loop and an adaptive rate limiter
// for calls to flaky upstreams.
//
// Example usage:
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	err := retrylimit.Do(ctx, retrylimit.Config{MaxAttempts: 2, AttemptTimeout: 30 * time.Second}, lim,
//	    func(ctx context.Context, attempt int) error {
//	        return openSomething(ctx)
//	    })
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// =============================================================================
// Limiter
// =============================================================================

// AdaptiveLimiter manages a rate limit that increases on success and decreases
// on throttling. Safe for concurrent use.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
}

// NewAdaptiveLimiter creates an AdaptiveLimiter.
//
// Parameters:
//   - initial: starting requests per second
//   - lo, hi: bounds for the rate
//   - stepUp: increment on success
//   - stepDown: multiplier applied when throttled (e.g. 0.5 to halve)
func NewAdaptiveLimiter(initial, lo, hi, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if lo <= 0 {
		lo = 1
	}
	if initial < lo {
		initial = lo
	}
	if hi < initial {
		hi = initial
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, max(1, int(initial))),
		minLimit: lo,
		maxLimit: hi,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

// Wait blocks until a token is available or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate unless a throttle was seen in the last 10 seconds.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > 10*time.Second {
		a.adjust(a.limiter.Limit() + a.stepUp)
	}
}

// Throttled lowers the rate after an upstream signalled overload.
func (a *AdaptiveLimiter) Throttled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.adjust(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) adjust(limit rate.Limit) {
	limit = min(max(limit, a.minLimit), a.maxLimit)
	if limit != a.limiter.Limit() {
		a.limiter.SetLimit(limit)
		a.limiter.SetBurst(max(1, int(limit)))
	}
}

// =============================================================================
// Errors
// =============================================================================

// HTTPError is implemented by errors that carry an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// StatusError is a minimal HTTPError.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

func (e *StatusError) StatusCode() int { return e.Code }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// AttemptsError reports every failed attempt of one Do call.
type AttemptsError struct {
	Attempts int
	Errs     []error
}

func (e *AttemptsError) Error() string {
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = fmt.Sprintf("attempt %d: %v", i+1, err)
	}
	return fmt.Sprintf("failed after %d attempt(s): %s", e.Attempts, strings.Join(parts, "; "))
}

func (e *AttemptsError) Unwrap() []error { return e.Errs }

// Last returns the error of the final attempt.
func (e *AttemptsError) Last() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[len(e.Errs)-1]
}

// =============================================================================
// Retry
// =============================================================================

type Config struct {
	MaxAttempts    int                          // total attempts including the first, at least 1
	AttemptTimeout time.Duration                // per-attempt deadline, 0 = inherit ctx
	InitialDelay   time.Duration                // pause before the second attempt
	MaxDelay       time.Duration                // cap for the backoff delay
	Multiplier     float64                      // backoff growth, values below 1 keep the delay constant
	Jitter         bool                         // add up to 25% random delay
	Retryable      func(error) bool             // nil = DefaultRetryable
	OnRetry        func(attempt int, err error) // called after a failed attempt that will be retried
}

// DefaultRetryable retries everything except permanent errors, 4xx responses
// other than 429, and cancellation of the parent context.
func DefaultRetryable(err error) bool {
	if IsPermanent(err) || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	return true
}

func isThrottle(err error) bool {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	return false
}

// Do runs fn until it succeeds, returns a non-retryable error, the parent ctx
// ends, or MaxAttempts is used up. Each attempt gets its own context bounded by
// AttemptTimeout; it is cancelled as soon as the attempt returns. Failures are
// reported as *AttemptsError.
func Do(ctx context.Context, cfg Config, lim *AdaptiveLimiter, fn func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Retryable == nil {
		cfg.Retryable = DefaultRetryable
	}

	failed := &AttemptsError{}
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			failed.Errs = append(failed.Errs, err)
			return failed
		}

		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				failed.Errs = append(failed.Errs, err)
				return failed
			}
		}

		err := runAttempt(ctx, cfg.AttemptTimeout, attempt, fn)
		failed.Attempts = attempt
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				log.Debug().Str("component", "retry").Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}
		failed.Errs = append(failed.Errs, err)

		if lim != nil && isThrottle(err) {
			lim.Throttled()
		}

		if attempt == cfg.MaxAttempts || !cfg.Retryable(err) {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		wait := delay
		if cfg.Jitter {
			wait = addJitter(wait)
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				failed.Errs = append(failed.Errs, ctx.Err())
				return failed
			case <-time.After(wait):
			}
		}

		if cfg.Multiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.Multiplier)
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return failed
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, fn func(ctx context.Context, attempt int) error) error {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	err := fn(attemptCtx, attempt)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("attempt timed out after %v: %w", timeout, err)
	}
	return err
}

// addJitter adds random jitter (0-25% of delay).
func addJitter(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	return delay + time.Duration(rand.Int64N(int64(delay/4)))
}
