package retry

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/turbosync/pkg/errors"
)

func TestDo(t *testing.T) {
	errTransient := errors.New("not yet")
	errFatal := errors.New("fatal")

	tests := []struct {
		name        string
		policy      Policy
		failUntil   int
		permanentAt int
		expCalls    int
		expError    error
	}{
		{
			name:     "FirstTry",
			policy:   Fixed(3, 0),
			expCalls: 1,
		},
		{
			name:      "SucceedsOnLastAttempt",
			policy:    Fixed(3, 0),
			failUntil: 3,
			expCalls:  3,
		},
		{
			name:      "Exhausted",
			policy:    Fixed(4, 0),
			failUntil: 100,
			expCalls:  4,
			expError:  ExhaustedError{Attempts: 4, Last: errTransient},
		},
		{
			name:        "Permanent",
			policy:      Fixed(5, 0),
			failUntil:   100,
			permanentAt: 2,
			expCalls:    2,
			expError:    errFatal,
		},
		{
			name:      "ZeroAttemptsMeansOne",
			policy:    Policy{},
			failUntil: 100,
			expCalls:  1,
			expError:  ExhaustedError{Attempts: 1, Last: errTransient},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), clockwork.NewRealClock(), test.policy,
				func(attempt int) error {
					calls++
					assert.Equal(t, calls, attempt)
					if attempt == test.permanentAt {
						return Permanent(errFatal)
					}
					if attempt < test.failUntil {
						return errTransient
					}
					return nil
				})
			assert.Equal(t, test.expError, err)
			assert.Equal(t, test.expCalls, calls)
		})
	}
}

func TestDoWaitsBetweenAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := make(chan int, 3)
	done := make(chan error)
	go func() {
		done <- Do(context.Background(), clock, Fixed(3, time.Second), func(attempt int) error {
			calls <- attempt
			return errors.New("not yet")
		})
	}()

	assert.Equal(t, 1, <-calls)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	assert.Equal(t, 2, <-calls)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	assert.Equal(t, 3, <-calls)

	// The final attempt returns without waiting on the clock.
	err := <-done
	assert.Equal(t, 3, err.(ExhaustedError).Attempts)
}

func TestDoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	done := make(chan error)
	go func() {
		done <- Do(ctx, clock, Fixed(3, time.Hour), func(int) error {
			return errors.New("not yet")
		})
	}()

	clock.BlockUntil(1)
	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestBackoffDelay(t *testing.T) {
	p := Policy{Delay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.delay(1))
	assert.Equal(t, 2*time.Second, p.delay(2))
	assert.Equal(t, 4*time.Second, p.delay(3))
	assert.Equal(t, 5*time.Second, p.delay(4))
	assert.Equal(t, 3*time.Second, Fixed(2, 3*time.Second).delay(7))
}
