// Package retry runs an operation under a bounded retry policy. Delays are
// driven by a clockwork.Clock so tests can run without sleeping.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sidkik/turbosync/pkg/errors"
)

// Policy bounds how often and how quickly an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int

	// Delay is the wait before the second attempt.
	Delay time.Duration

	// Multiplier scales the delay after each attempt. Values <= 1 give a
	// fixed delay.
	Multiplier float64

	// MaxDelay caps the delay when Multiplier > 1. Zero means no cap.
	MaxDelay time.Duration
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay}
}

// delay returns how long to wait after the given (1-indexed) attempt.
func (p Policy) delay(attempt int) time.Duration {
	d := p.Delay
	if p.Multiplier <= 1 {
		return d
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// ExhaustedError is returned when every attempt failed with a retryable
// error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (err ExhaustedError) Error() string {
	if err.Last == nil {
		return "gave up after " + pluralAttempts(err.Attempts)
	}
	return "gave up after " + pluralAttempts(err.Attempts) + ": " + err.Last.Error()
}

func (err ExhaustedError) Unwrap() error {
	return err.Last
}

func pluralAttempts(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}

type permanentError struct {
	err error
}

func (err permanentError) Error() string {
	return err.err.Error()
}

func (err permanentError) Unwrap() error {
	return err.err
}

// Permanent marks an error as not worth retrying. Do returns the wrapped
// error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// Do calls fn until it succeeds, returns a Permanent error, the context is
// cancelled, or the policy's attempts are used up. fn receives the
// 1-indexed attempt number. There is no wait after the final attempt.
func Do(ctx context.Context, clock clockwork.Clock, policy Policy, fn func(attempt int) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		var permanent permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		last = err

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(policy.delay(attempt)):
		}
	}
	return ExhaustedError{Attempts: attempts, Last: last}
}
