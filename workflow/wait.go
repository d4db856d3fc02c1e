package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrConditionNotMet is returned when every attempt of WaitForCondition
// probed false without error.
var ErrConditionNotMet = errors.New("workflow: condition not met")

// WaitForCondition polls a read-only predicate up to maxAttempts times,
// sleeping interval between attempts. It exists so eventual-consistency waits
// (discovery-index propagation, transaction settlement) share one policy
// instead of inlined sleeps. Probes must be side-effect free: this helper is
// never used for funds-moving operations.
func WaitForCondition(ctx context.Context, maxAttempts int, interval time.Duration, probe func(ctx context.Context) (bool, error)) error {
	if maxAttempts < 1 {
		return fmt.Errorf("workflow: maxAttempts must be at least 1, got %d", maxAttempts)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ok, err := probe(ctx)
		if err != nil {
			lastErr = err
		} else if ok {
			return nil
		}

		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrConditionNotMet, maxAttempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrConditionNotMet, maxAttempts)
}

// Sleep blocks for d or until the context is cancelled. Used for the coarse
// settle delay between funding and the dependent transfer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
