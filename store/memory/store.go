// Package memory provides a fully in-memory implementation of store.Store.
// It is safe for concurrent use and is intended for unit tests — the
// worker, scheduling, and cronplanner test suites all run against it.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eykd/companion-memory/id"
	"github.com/eykd/companion-memory/jobqueue"
	"github.com/eykd/companion-memory/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory, mutex-guarded implementation of store.Store.
type Store struct {
	mu sync.Mutex

	jobs  map[id.JobID]*jobqueue.Record
	dedup map[string]dedupEntry
	lock  *store.LockRecord
}

type dedupEntry struct {
	ref        store.JobRef
	reservedAt time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:  make(map[id.JobID]*jobqueue.Record),
		dedup: make(map[string]dedupEntry),
	}
}

// ──────────────────────────────────────────────────
// JobStore
// ──────────────────────────────────────────────────

// Insert adds a new job record. Fails with store.ErrAlreadyExists if the
// job_id is already present.
func (s *Store) Insert(_ context.Context, rec *jobqueue.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[rec.JobID]; exists {
		return store.ErrAlreadyExists
	}
	s.jobs[rec.JobID] = rec.Clone()
	return nil
}

// Get returns the live record for jobID.
func (s *Store) Get(_ context.Context, jobID id.JobID) (*jobqueue.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// QueryDue returns up to limit pending or in-progress records with an
// absent or stale lease and scheduled_for <= now, ordered ascending.
func (s *Store) QueryDue(_ context.Context, now time.Time, limit int) ([]*jobqueue.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*jobqueue.Record
	for _, rec := range s.jobs {
		if rec.Status != jobqueue.StatusPending && rec.Status != jobqueue.StatusInProgress {
			continue
		}
		if rec.ScheduledFor.After(now) {
			continue
		}
		if !rec.HasExpiredLease(now) {
			continue
		}
		due = append(due, rec)
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledFor.Equal(due[j].ScheduledFor) {
			return due[i].ScheduledFor.Before(due[j].ScheduledFor)
		}
		return due[i].JobID < due[j].JobID
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*jobqueue.Record, len(due))
	for i, rec := range due {
		out[i] = rec.Clone()
	}
	return out, nil
}

// Claim conditionally transitions a job to in_progress under the caller's
// lease. A job already in_progress whose lease has expired (its worker
// died mid-handler) can be claimed again.
func (s *Store) Claim(_ context.Context, rec *jobqueue.Record, workerID id.WorkerID, lease time.Duration, now time.Time) (store.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[rec.JobID]
	if !ok {
		return store.ClaimLost, nil
	}
	if current.Status != jobqueue.StatusPending && current.Status != jobqueue.StatusInProgress {
		return store.ClaimLost, nil
	}
	if !current.HasExpiredLease(now) {
		return store.ClaimLost, nil
	}

	expires := now.Add(lease)
	current.Status = jobqueue.StatusInProgress
	current.LockedBy = workerID
	current.LockExpiresAt = &expires
	current.Attempts++

	return store.ClaimWon, nil
}

// RenewLease extends the lease on an in-progress job the caller holds.
func (s *Store) RenewLease(_ context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration, now time.Time) (store.RenewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return store.RenewLost, nil
	}
	if current.Status != jobqueue.StatusInProgress || current.LockedBy != workerID {
		return store.RenewLost, nil
	}

	expires := now.Add(lease)
	current.LockExpiresAt = &expires
	return store.RenewOK, nil
}

// MarkCompleted finalizes a job as completed.
func (s *Store) MarkCompleted(_ context.Context, jobID id.JobID, workerID id.WorkerID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if current.LockedBy != workerID {
		return store.ErrConditionFailed
	}

	current.Status = jobqueue.StatusCompleted
	current.CompletedAt = &now
	current.LockedBy = ""
	current.LockExpiresAt = nil
	return nil
}

// MarkFailedForRetry rotates the job record to a new scheduled_for,
// leaving it pending. Attempts and the job_id are preserved; the sort key
// changes because scheduled_for changes.
func (s *Store) MarkFailedForRetry(_ context.Context, jobID id.JobID, workerID id.WorkerID, nextRun time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if current.LockedBy != workerID {
		return store.ErrConditionFailed
	}

	current.Status = jobqueue.StatusPending
	current.ScheduledFor = nextRun
	current.LastError = lastError
	current.LockedBy = ""
	current.LockExpiresAt = nil
	return nil
}

// MarkDeadLetter finalizes a job as dead_letter.
func (s *Store) MarkDeadLetter(_ context.Context, jobID id.JobID, workerID id.WorkerID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if current.LockedBy != workerID {
		return store.ErrConditionFailed
	}

	current.Status = jobqueue.StatusDeadLetter
	current.LastError = lastError
	current.LockedBy = ""
	current.LockExpiresAt = nil
	return nil
}

// Cancel transitions a pending job to cancelled.
func (s *Store) Cancel(_ context.Context, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != jobqueue.StatusPending {
		return store.ErrConditionFailed
	}

	current.Status = jobqueue.StatusCancelled
	return nil
}

// ──────────────────────────────────────────────────
// DedupStore
// ──────────────────────────────────────────────────

// TryReserve conditionally reserves a (logicalID, bucket) slot.
func (s *Store) TryReserve(_ context.Context, logicalID, bucket string, ref store.JobRef, reservedAt time.Time) (store.DedupOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobqueue.DedupPartitionKey(logicalID) + "#" + bucket
	if _, exists := s.dedup[key]; exists {
		return store.AlreadyReserved, nil
	}

	s.dedup[key] = dedupEntry{ref: ref, reservedAt: reservedAt}
	return store.Reserved, nil
}

// ──────────────────────────────────────────────────
// LockStore
// ──────────────────────────────────────────────────

// Acquire conditionally writes the singleton lock record.
func (s *Store) Acquire(_ context.Context, processID string, ttl time.Duration, now time.Time, instanceInfo map[string]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil && s.lock.ExpiresAt.After(now) {
		return false, nil
	}

	s.lock = &store.LockRecord{
		ProcessID:    processID,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(ttl),
		InstanceInfo: instanceInfo,
	}
	return true, nil
}

// Refresh extends the lock's expiry if the caller still holds it.
func (s *Store) Refresh(_ context.Context, processID string, ttl time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil || s.lock.ProcessID != processID {
		return false, nil
	}

	s.lock.ExpiresAt = now.Add(ttl)
	return true, nil
}

// Release conditionally deletes the lock if the caller holds it.
func (s *Store) Release(_ context.Context, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil || s.lock.ProcessID != processID {
		return nil
	}
	s.lock = nil
	return nil
}

// GetLock returns a copy of the current lock record, or nil if unheld.
func (s *Store) GetLock(_ context.Context) (*store.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return nil, nil
	}
	cp := *s.lock
	return &cp, nil
}
