package report

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SentryOptions configures the Sentry client underlying SentryReporter.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initializes the global Sentry SDK client. A blank DSN is
// treated as "disabled" rather than an error, matching how environments
// without a configured DSN should behave in development.
func InitSentry(opts SentryOptions) error {
	if opts.DSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		AttachStacktrace: true,
	})
}

// SentryReporter reports job failures to Sentry, attaching job_id,
// job_type, attempts, and payload as scoped context before capturing the
// exception.
type SentryReporter struct{}

// NewSentryReporter builds a SentryReporter. Call InitSentry first.
func NewSentryReporter() *SentryReporter {
	return &SentryReporter{}
}

// ReportJobFailure sets job context on a fresh Sentry scope and captures
// err.
func (r *SentryReporter) ReportJobFailure(_ context.Context, jobCtx JobContext, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetContext("job", map[string]interface{}{
			"job_id":        jobCtx.JobID,
			"job_type":      jobCtx.JobType,
			"attempts":      jobCtx.Attempts,
			"payload":       string(jobCtx.Payload),
			"scheduled_for": jobCtx.ScheduledFor,
		})
		sentry.CaptureException(err)
	})
}
