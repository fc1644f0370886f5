package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type Class int

const (
	Retryable Class = iota
	Fatal
)

// Policy is a pure value; the same policy can drive any number of calls.
type Policy struct {
	MaxAttempts int           // e.g. 3
	BaseDelay   time.Duration // e.g. 500ms
	MaxDelay    time.Duration // e.g. 5s
	Jitter      time.Duration // e.g. 100ms (<= BaseDelay recommended)

	// Classify decides whether an error is retryable.
	// If nil, default: retry on any non-nil error.
	Classify func(error) Class

	// OnRetry is optional hook for logging/metrics.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// FatalOn builds a classifier that stops on any of targets (errors.Is) and
// on context cancellation, and retries everything else.
func FatalOn(targets ...error) func(error) Class {
	return func(err error) Class {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Fatal
		}
		for _, t := range targets {
			if errors.Is(err, t) {
				return Fatal
			}
		}
		return Retryable
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Classify == nil {
		p.Classify = func(error) Class { return Retryable }
	}
	return p
}

// Do runs fn until it succeeds, returns a fatal error or attempts run out.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := DoN(ctx, p, fn)
	return err
}

// DoN is Do that also reports how many attempts were made.
func DoN(ctx context.Context, p Policy, fn func(context.Context) error) (int, error) {
	p = p.withDefaults()

	var lastErr error
	attempt := 0
	for attempt < p.MaxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if p.Classify(err) == Fatal || attempt == p.MaxAttempts {
			break
		}

		// exponential backoff with cap + jitter
		wait := p.BaseDelay << (attempt - 1)
		if wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if p.Jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.Jitter)))
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry: exhausted with no error (unexpected)")
	}
	return attempt, lastErr
}
