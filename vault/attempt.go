// ABOUTME: Bounded execution of slow unlock steps (KDF, decrypt, storage I/O).
// ABOUTME: A stalled attempt is abandoned and its late result discarded.
package vault

import (
	"context"
	"time"
)

// runBounded executes fn with a deadline, respecting caller cancellation.
// If the budget elapses the attempt is abandoned and the caller gets the
// context error; a drain goroutine waits for fn's eventual return and hands
// a late success to discard, so a value that must be released is never
// stranded in the channel. A superseding PIN submission cancels ctx to the
// same effect.
func runBounded[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error), discard func(T)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := fn(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if out := <-done; out.err == nil && discard != nil {
				discard(out.result)
			}
		}()
		return zero, ctx.Err()
	case out := <-done:
		return out.result, out.err
	}
}
