// Package jobqueue defines the JobRecord data model and the storage-key
// encoding that makes range scans over the backing key-value store return
// exactly the due jobs.
package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/eykd/companion-memory/id"
)

// Status is the lifecycle state of a JobRecord. Each constant below
// describes its state.
type Status string

const (
	// StatusPending means the job is waiting to be claimed by a worker.
	StatusPending Status = "pending"
	// StatusInProgress means a worker holds a lease and is executing the job.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the handler returned successfully. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed names a failed dispatch attempt awaiting retry. No store
	// in this module writes it: MarkFailedForRetry (package store) moves a
	// failed attempt straight back to StatusPending.
	StatusFailed Status = "failed"
	// StatusDeadLetter means the retry budget was exhausted, or the payload
	// failed validation. Terminal.
	StatusDeadLetter Status = "dead_letter"
	// StatusCancelled means an administrator cancelled the job before it ran.
	// Terminal.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is one of the terminal states a job may
// never transition out of (the terminal-state invariant).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeadLetter, StatusCancelled:
		return true
	default:
		return false
	}
}

// Record is the persisted representation of one scheduled job. Field
// names mirror the storage representation directly so the store package's
// conditional-write preconditions read as a direct translation of the
// record's fields.
type Record struct {
	JobID         id.JobID        `json:"job_id"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	ScheduledFor  time.Time       `json:"scheduled_for"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	LockedBy      id.WorkerID     `json:"locked_by,omitempty"`
	LockExpiresAt *time.Time      `json:"lock_expires_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// HasExpiredLease reports whether the record's lease is absent or stale as
// of now, making it eligible for (re-)claim by QueryDue.
func (r *Record) HasExpiredLease(now time.Time) bool {
	return r.LockExpiresAt == nil || r.LockExpiresAt.Before(now)
}

// Clone returns a deep-enough copy for safe handoff across goroutine/store
// boundaries (the Payload slice is shared; callers treat it as read-only).
func (r *Record) Clone() *Record {
	cp := *r
	if r.LockExpiresAt != nil {
		t := *r.LockExpiresAt
		cp.LockExpiresAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
