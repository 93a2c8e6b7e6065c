// Package id generates the identifiers used by job records and workers.
//
// JobID deliberately uses a version-1 UUID (github.com/google/uuid's
// NewUUID), which embeds its creation timestamp, unlike a random UUIDv4.
// Its canonical string puts the low-order timestamp bits first, so two
// job IDs do not compare in creation order: a job's sort key orders by
// scheduled_for, and the job_id tail only makes each key unique.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// JobID identifies a job record.
type JobID string

// NewJobID generates a time-ordered job identifier (UUIDv1).
func NewJobID() JobID {
	u, err := uuid.NewUUID()
	if err != nil {
		// Entropy/clock-sequence exhaustion only; fall back to a random ID
		// rather than panicking the caller.
		u = uuid.New()
	}
	return JobID(u.String())
}

// ParseJobID validates that s is a well-formed UUID.
func ParseJobID(s string) (JobID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("id: parse job id %q: %w", s, err)
	}
	return JobID(s), nil
}

func (j JobID) String() string { return string(j) }

// WorkerID identifies a worker process competing for job leases and the
// singleton lock.
type WorkerID string

// NewWorkerID generates a random worker identifier, prefixed for
// readability in logs ("worker-<hex>").
func NewWorkerID() WorkerID {
	return WorkerID("worker-" + uuid.NewString()[:8])
}

func (w WorkerID) String() string { return string(w) }
