// Package retry implements the exponential-backoff policy that decides
// whether a failed job gets rescheduled or moved to the dead letter state.
package retry

import "time"

const (
	defaultBaseDelay   = 60 * time.Second
	defaultMaxAttempts = 5
)

// Policy computes retry delays and the retry/dead-letter decision for a
// failed job. The zero value is not usable; construct with New.
type Policy struct {
	baseDelay   time.Duration
	maxAttempts int
}

// Option configures a Policy.
type Option func(*Policy)

// WithBaseDelay sets the delay used for the first retry. Later retries
// scale this delay exponentially.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.baseDelay = d }
}

// WithMaxAttempts sets the attempt count at which a job stops retrying
// and is dead-lettered instead.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.maxAttempts = n }
}

// New builds a Policy, defaulting to a 60 second base delay and 5 max
// attempts.
func New(opts ...Option) *Policy {
	p := &Policy{
		baseDelay:   defaultBaseDelay,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the configured retry budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether a job that has failed attempts times should
// be retried (true) or dead-lettered (false). attempts is 1-based: the
// count includes the attempt that just failed.
func (p *Policy) ShouldRetry(attempts int) bool {
	return attempts < p.maxAttempts
}

// Delay returns the backoff duration for the given 1-based attempt count:
// base_delay * 2^(attempts-1).
func (p *Policy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	exp := attempts - 1
	// A job is never retried past maxAttempts-1, so the exponent never
	// grows large enough to overflow in practice; cap defensively anyway.
	if maxExp := p.maxAttempts - 1; exp > maxExp {
		exp = maxExp
	}
	return p.baseDelay * time.Duration(1<<uint(exp))
}

// NextRun returns the time at which a failed job should next become due.
func (p *Policy) NextRun(now time.Time, attempts int) time.Time {
	return now.Add(p.Delay(attempts))
}
