package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/eykd/companion-memory/clock"
	"github.com/eykd/companion-memory/id"
	"github.com/eykd/companion-memory/jobqueue"
	"github.com/eykd/companion-memory/registry"
	"github.com/eykd/companion-memory/report"
	"github.com/eykd/companion-memory/retry"
	"github.com/eykd/companion-memory/store"
)

const (
	defaultPollInterval     = 30 * time.Second
	defaultBatchLimit       = 25
	defaultLease            = 60 * time.Second
	defaultConcurrency      = 8
	defaultGracefulTimeout  = 30 * time.Second
	defaultLeaseRenewFactor = 2 // renew at lease/defaultLeaseRenewFactor
)

// Worker runs the poll/claim/execute loop against a store.Store, dispatching
// claimed jobs through a registry.Dispatcher and routing failures through a
// retry.Policy.
type Worker struct {
	store      store.Store
	dispatcher *registry.Dispatcher
	retryer    *retry.Policy
	reporter   report.ErrorReporter
	clock      clock.Clock
	logger     *slog.Logger
	mw         Middleware

	workerID       id.WorkerID
	pollInterval   time.Duration
	batchLimit     int
	lease          time.Duration
	concurrency    int64
	gracefulWindow time.Duration

	sem *semaphore.Weighted

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval sets how often the worker queries for due jobs.
func WithPollInterval(d time.Duration) Option { return func(w *Worker) { w.pollInterval = d } }

// WithBatchLimit sets the max jobs fetched per QueryDue call.
func WithBatchLimit(n int) Option { return func(w *Worker) { w.batchLimit = n } }

// WithLease sets the initial lease duration granted on Claim.
func WithLease(d time.Duration) Option { return func(w *Worker) { w.lease = d } }

// WithConcurrency bounds the number of jobs executed at once.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		w.concurrency = int64(n)
		w.sem = semaphore.NewWeighted(int64(n))
	}
}

// WithGracefulTimeout sets how long Run and Stop wait for in-flight jobs
// before giving up and returning anyway.
func WithGracefulTimeout(d time.Duration) Option { return func(w *Worker) { w.gracefulWindow = d } }

// WithWorkerID overrides the generated worker identifier.
func WithWorkerID(wid id.WorkerID) Option { return func(w *Worker) { w.workerID = wid } }

// WithMiddleware sets the middleware chain wrapping every dispatch.
func WithMiddleware(mws ...Middleware) Option {
	return func(w *Worker) { w.mw = Chain(mws...) }
}

// WithClock overrides the clock used for polling and lease math.
func WithClock(c clock.Clock) Option { return func(w *Worker) { w.clock = c } }

// WithReporter overrides the ErrorReporter used on handler failures.
func WithReporter(r report.ErrorReporter) Option { return func(w *Worker) { w.reporter = r } }

// New builds a Worker over the given store, dispatcher, and retry policy.
func New(s store.Store, dispatcher *registry.Dispatcher, retryer *retry.Policy, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:          s,
		dispatcher:     dispatcher,
		retryer:        retryer,
		reporter:       report.NopReporter{},
		clock:          clock.New(),
		logger:         logger,
		mw:             Chain(Recover(logger), Logging(logger)),
		workerID:       id.NewWorkerID(),
		pollInterval:   defaultPollInterval,
		batchLimit:     defaultBatchLimit,
		lease:          defaultLease,
		concurrency:    defaultConcurrency,
		gracefulWindow: defaultGracefulTimeout,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.sem == nil {
		w.sem = semaphore.NewWeighted(w.concurrency)
	}
	return w
}

// WorkerID returns this worker's unique identifier.
func (w *Worker) WorkerID() id.WorkerID { return w.workerID }

// Run polls for due jobs until ctx is cancelled or Stop is called. It
// blocks until the poll loop exits and all in-flight jobs finish (or the
// graceful timeout elapses).
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.active {
		w.mu.Unlock()
		return nil
	}
	w.active = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		slog.String("worker_id", w.workerID.String()),
		slog.Int("concurrency", int(w.concurrency)),
		slog.Duration("poll_interval", w.pollInterval),
	)

	done := make(chan struct{})
	go func() {
		w.pollLoop(ctx)
		close(done)
	}()

	select {
	case <-ctx.Done():
		w.stop()
	case <-done:
	}

	<-done

	inFlight := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(inFlight)
	}()
	timer := time.NewTimer(w.gracefulWindow)
	defer timer.Stop()
	select {
	case <-inFlight:
	case <-timer.C:
		w.logger.Warn("worker shutdown timed out with jobs still in flight")
	}

	w.mu.Lock()
	w.active = false
	w.mu.Unlock()

	return nil
}

// Stop signals the poll loop to exit and waits up to the configured
// graceful timeout for in-flight jobs to finish.
func (w *Worker) Stop(ctx context.Context) {
	w.stop()

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	timer := time.NewTimer(w.gracefulWindow)
	defer timer.Stop()

	select {
	case <-doneCh:
	case <-timer.C:
		w.logger.Warn("worker shutdown timed out with jobs still in flight")
	case <-ctx.Done():
	}
}

func (w *Worker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *Worker) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		w.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// pollOnce queries for due jobs and dispatches as many as concurrency
// allows, in ascending scheduled_for order.
func (w *Worker) pollOnce(ctx context.Context) {
	now := w.clock.Now()

	due, err := w.store.QueryDue(ctx, now, w.batchLimit)
	if err != nil {
		w.logger.Error("poll: query due jobs failed", slog.String("error", err.Error()))
		return
	}

	for _, rec := range due {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}

		rec := rec
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.sem.Release(1)
			w.claimAndRun(context.Background(), rec)
		}()
	}
}

func (w *Worker) claimAndRun(ctx context.Context, rec *jobqueue.Record) {
	now := w.clock.Now()

	result, err := w.store.Claim(ctx, rec, w.workerID, w.lease, now)
	if err != nil {
		w.logger.Error("claim failed", slog.String("job_id", rec.JobID.String()), slog.String("error", err.Error()))
		return
	}
	if result == store.ClaimLost {
		return
	}

	// Claim incremented attempts in the store (ADD attempts :one /
	// current.Attempts++); rec is the pre-claim snapshot QueryDue returned,
	// so reflect that increment locally before anything downstream reads
	// rec.Attempts.
	rec.Attempts++

	renewStop := make(chan struct{})
	var renewWg sync.WaitGroup
	renewWg.Add(1)
	go func() {
		defer renewWg.Done()
		w.renewLeaseLoop(rec.JobID, renewStop)
	}()

	err = w.mw(ctx, rec, func(ctx context.Context) error {
		return w.dispatcher.Dispatch(ctx, rec.JobType, rec.JobID.String(), rec.Attempts, rec.Payload)
	})

	close(renewStop)
	renewWg.Wait()

	if err == nil {
		if markErr := w.store.MarkCompleted(ctx, rec.JobID, w.workerID, w.clock.Now()); markErr != nil {
			w.logger.Error("mark completed failed", slog.String("job_id", rec.JobID.String()), slog.String("error", markErr.Error()))
		}
		return
	}

	w.handleFailure(ctx, rec, err)
}

// handleFailure routes a dispatch error to dead-letter (validation or
// budget-exhausted) or to a rescheduled retry.
func (w *Worker) handleFailure(ctx context.Context, rec *jobqueue.Record, handlerErr error) {
	w.reporter.ReportJobFailure(ctx, report.JobContext{
		JobID:        rec.JobID.String(),
		JobType:      rec.JobType,
		Attempts:     rec.Attempts,
		Payload:      rec.Payload,
		ScheduledFor: rec.ScheduledFor.Format(time.RFC3339),
	}, handlerErr)

	var validationErr *registry.ValidationError
	permanent := errors.As(handlerErr, &validationErr)

	if !permanent && w.retryer.ShouldRetry(rec.Attempts) {
		nextRun := w.retryer.NextRun(w.clock.Now(), rec.Attempts)
		if err := w.store.MarkFailedForRetry(ctx, rec.JobID, w.workerID, nextRun, handlerErr.Error()); err != nil {
			w.logger.Error("mark failed for retry failed", slog.String("job_id", rec.JobID.String()), slog.String("error", err.Error()))
		}
		return
	}

	if err := w.store.MarkDeadLetter(ctx, rec.JobID, w.workerID, handlerErr.Error()); err != nil {
		w.logger.Error("mark dead letter failed", slog.String("job_id", rec.JobID.String()), slog.String("error", err.Error()))
	}
}

// renewLeaseLoop extends the claimed job's lease at half the lease length
// until renewStop closes. A lost renewal (another worker reclaimed after
// perceived expiry) logs a warning and stops the loop; the in-flight
// handler keeps running and its result
// will simply fail its own terminal write and be reconciled on the next
// poll.
func (w *Worker) renewLeaseLoop(jobID id.JobID, renewStop <-chan struct{}) {
	interval := w.lease / defaultLeaseRenewFactor
	if interval <= 0 {
		interval = w.lease
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-renewStop:
			return
		case <-ticker.C:
			result, err := w.store.RenewLease(context.Background(), jobID, w.workerID, w.lease, w.clock.Now())
			if err != nil {
				w.logger.Error("lease renewal failed", slog.String("job_id", jobID.String()), slog.String("error", err.Error()))
				continue
			}
			if result == store.RenewLost {
				w.logger.Warn("lease renewal lost, another worker may reclaim", slog.String("job_id", jobID.String()))
				return
			}
		}
	}
}
