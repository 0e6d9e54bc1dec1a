package queue

import (
	"context"
	"time"

	"github.com/scanhead-sdk/scanhead-go/internal/scanerr"
)

// Take blocks until an element is available, ctx is cancelled, or timeout
// elapses (timeout < 0 means wait forever). It is the one blocking
// operation this queue supports; everything else is try_* and
// non-blocking, per the concurrency model's suspension-point contract.
func (q *Overflow[T]) Take(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	if v, ok := q.TryPop(); ok {
		return v, nil
	}

	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	poll := time.NewTicker(time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, scanerr.Wrap(scanerr.Transport, scanerr.ErrTimeout, "take cancelled: %v", ctx.Err())
		case <-deadline:
			return zero, scanerr.Wrap(scanerr.Transport, scanerr.ErrTimeout, "take timed out after %s", timeout)
		case <-poll.C:
			if v, ok := q.TryPop(); ok {
				return v, nil
			}
		}
	}
}
