// Package worker implements the poll/claim/execute loop: it queries the
// store for due jobs, claims each one under a lease, runs it through
// a middleware chain and the handler registry's dispatcher, and routes
// failures through the retry policy to either a rescheduled attempt or
// the dead letter state.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/eykd/companion-memory/jobqueue"
)

// Handler is the terminal function that runs a job's dispatch step.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting behavior. It receives the
// record being executed and must call next to continue the chain unless
// short-circuiting on error.
type Middleware func(ctx context.Context, rec *jobqueue.Record, next Handler) error

// Chain composes middleware into one Middleware, applied outermost-first:
// Chain(a, b, c) executes as a -> b -> c -> handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, rec *jobqueue.Record, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, rec, prev)
			}
		}
		return h(ctx)
	}
}

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, rec *jobqueue.Record, next Handler) error {
		logger.Info("job started",
			slog.String("job_id", rec.JobID.String()),
			slog.String("job_type", rec.JobType),
			slog.Int("attempts", rec.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_id", rec.JobID.String()),
				slog.String("job_type", rec.JobType),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_id", rec.JobID.String()),
				slog.String("job_type", rec.JobType),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}

// Recover returns middleware that converts handler panics into errors,
// logging a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, rec *jobqueue.Record, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_id", rec.JobID.String()),
					slog.String("job_type", rec.JobType),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in job %s: %v", rec.JobType, r)
			}
		}()
		return next(ctx)
	}
}

// Timeout returns middleware that bounds handler execution to d. A
// non-positive d disables the timeout.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, rec *jobqueue.Record, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
