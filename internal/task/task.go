// Package task provides the single cancellable, periodically re-armed
// timer the heartbeat Manager runs its dispatch cycles against. Its
// Start/Schedule/Every shape is adapted from github.com/canonical/lxd's
// lxd/task package; that package's own task.go source was filtered out
// of the retrieval pack (only lxd/task/task_test.go survived), so this
// implementation is rebuilt to match the behavior documented by those
// tests rather than copied from source.
package task

import (
	"context"
	"time"
)

// Func is a unit of periodic work. It is handed a context that is
// cancelled once Stop is called, so long-running work can observe
// shutdown.
type Func func(context.Context)

// Schedule decides how long to wait before the next invocation of a
// Func. Returning a non-nil error together with a positive duration
// tells Start to wait that long and then re-consult the schedule
// without running the Func; a non-positive duration alongside an error
// aborts the loop for good.
type Schedule func() (time.Duration, error)

type everyOptions struct {
	skipFirst bool
}

// EveryOption customizes the schedule returned by Every.
type EveryOption func(*everyOptions)

// SkipFirst makes Every's first round a no-op wait rather than an
// immediate run, so the very first invocation happens only after one
// full interval has elapsed.
func SkipFirst(o *everyOptions) {
	o.skipFirst = true
}

// Every returns a Schedule that fires at a fixed interval. A zero
// interval disables the task entirely: Start will exit immediately
// without ever invoking the Func.
func Every(interval time.Duration, options ...EveryOption) Schedule {
	o := &everyOptions{}
	for _, option := range options {
		option(o)
	}

	first := true

	return func() (time.Duration, error) {
		if interval <= 0 {
			return 0, errZeroInterval
		}

		if first {
			first = false
			if o.skipFirst {
				return interval, errSkipRound
			}
		}

		return interval, nil
	}
}

var (
	errZeroInterval = zeroIntervalError{}
	errSkipRound    = skipRoundError{}
)

type zeroIntervalError struct{}

func (zeroIntervalError) Error() string { return "task: zero interval" }

type skipRoundError struct{}

func (skipRoundError) Error() string { return "task: skip first round" }

// Start launches f on the schedule described by schedule, in a
// dedicated goroutine. It returns:
//
//   - stop: cancels the schedule and blocks until the goroutine exits or
//     ctx is done, whichever comes first. If f is currently running,
//     stop waits for that invocation to finish; a cancelled/expired ctx
//     makes stop return an error but the goroutine is left to exit on
//     its own.
//   - reset: requests that any pending wait be cut short, so the next
//     round starts immediately. Resets arriving while f is running are
//     coalesced into a single extra round.
func Start(f Func, schedule Schedule) (stop func(ctx context.Context) error, reset func()) {
	ctx, cancel := context.WithCancel(context.Background())
	resetCh := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)

		pending := time.Duration(0)

		for {
			select {
			case <-ctx.Done():
				return
			case <-resetCh:
			case <-time.After(pending):
			}

			delay, err := schedule()
			if err != nil {
				if delay <= 0 {
					return
				}

				pending = delay
				continue
			}

			f(ctx)
			pending = delay
		}
	}()

	stop = func(ctx context.Context) error {
		cancel()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return errStopTimeout
		}
	}

	reset = func() {
		select {
		case resetCh <- struct{}{}:
		default:
		}
	}

	return stop, reset
}

var errStopTimeout = stopTimeoutError{}

type stopTimeoutError struct{}

func (stopTimeoutError) Error() string { return "task: stop timed out waiting for task to exit" }
