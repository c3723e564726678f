/*------------------------------------------------------------------
 *
 * Purpose:	Compose a node's concurrent tasks with first-completed
 *		semantics and restart the whole set on failure.
 *
 * Description:	If any task completes or returns an error, the error is
 *		logged and every other task in the set is cancelled; the
 *		supervisor then waits audera.TimeOut and restarts the whole
 *		set, unless the supervisor's own context was cancelled (an
 *		orderly shutdown, propagated through the task's own events
 *		rather than through this package).
 *
 *---------------------------------------------------------------*/
package supervisor

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Task is one independently-restartable unit of work.
type Task func(ctx context.Context) error

// Run runs tasks concurrently until ctx is cancelled, restarting the whole
// set after timeOut whenever any one of them returns.
func Run(ctx context.Context, logger *log.Logger, timeOut time.Duration, tasks ...Task) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := runOnce(ctx, tasks); err != nil {
			logger.Error("supervised task set exited, restarting", "err", err, "after_sec", timeOut.Seconds())
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(timeOut):
		}
	}
}

// runOnce starts every task, waits for the first to finish, cancels the
// rest, and waits for them to actually stop before returning. Cancellation
// must be observed before the next restart attempt.
func runOnce(ctx context.Context, tasks []Task) error {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(tasks))
	for _, t := range tasks {
		t := t
		go func() { results <- t(childCtx) }()
	}

	first := <-results
	cancel()

	for i := 1; i < len(tasks); i++ {
		<-results
	}

	return first
}
