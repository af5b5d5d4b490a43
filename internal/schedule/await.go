package schedule

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by Await when the condition was not met
// within the timeout.
var ErrWaitTimeout = errors.New("schedule: wait timed out")

// Await polls probe until it reports the condition is met, the timeout
// elapses, or probe returns an error. The first probe happens immediately,
// so an already-satisfied condition never waits at all.
//
// Probe contract: return (true, nil) when the condition is met, (false,
// nil) to keep waiting (including across transient failures the probe
// chooses to tolerate), or a non-nil error to fail fast without burning
// the remaining timeout.
func Await(ctx context.Context, interval, timeout time.Duration, probe func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := probe(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrWaitTimeout
			}
			return ctx.Err()
		case <-ticker.C:
			ok, err := probe(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}
