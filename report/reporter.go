// Package report defines the ErrorReporter port consumed by the worker
// when a job handler fails, and a Sentry-backed implementation.
package report

import (
	"context"
	"encoding/json"
)

// JobContext carries the job metadata attached to an error report.
type JobContext struct {
	JobID        string
	JobType      string
	Attempts     int
	Payload      json.RawMessage
	ScheduledFor string
}

// ErrorReporter reports a job failure to an external error-tracking
// system. Implementations must not block the worker for long. The method
// returns nothing, so a failure inside a reporter never reaches the caller
// and never changes the job's outcome.
type ErrorReporter interface {
	ReportJobFailure(ctx context.Context, jobCtx JobContext, err error)
}

// NopReporter discards every report. Useful for tests and for running
// without a configured Sentry DSN.
type NopReporter struct{}

// ReportJobFailure implements ErrorReporter by doing nothing.
func (NopReporter) ReportJobFailure(context.Context, JobContext, error) {}
