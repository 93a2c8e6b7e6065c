// Package scheduling is the API every caller uses to enqueue a job:
// request handlers, the CLI, and cron planners all go through Schedule
// rather than touching store.Store directly. It is the one place that
// enforces "job_type must be registered before anything is persisted".
package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eykd/companion-memory/clock"
	"github.com/eykd/companion-memory/id"
	"github.com/eykd/companion-memory/jobqueue"
	"github.com/eykd/companion-memory/registry"
	"github.com/eykd/companion-memory/store"
)

// Outcome reports whether Schedule actually persisted a new job.
type Outcome int

const (
	// Scheduled means a new job record was inserted.
	Scheduled Outcome = iota
	// Deduplicated means logical_id was already reserved for this bucket;
	// no new job was inserted and the caller's earlier request stands.
	Deduplicated
)

func (o Outcome) String() string {
	if o == Deduplicated {
		return "deduplicated"
	}
	return "scheduled"
}

// ConfigError means job_type has no registered handler. It is returned
// before any store write is attempted, so Schedule is a no-op on the
// backing store when this error is returned.
type ConfigError struct {
	JobType string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scheduling: unknown job type %q", e.JobType)
}

// Scheduler validates job_type against a registry.Registry and persists
// jobs through a store.Store, optionally deduplicating by logical ID.
type Scheduler struct {
	store    store.Store
	registry *registry.Registry
	clock    clock.Clock
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used to stamp CreatedAt and to compute the
// default dedup bucket.
func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clock = c } }

// New builds a Scheduler over the given store, validating job_type against
// reg before every write.
func New(s store.Store, reg *registry.Registry, opts ...Option) *Scheduler {
	sch := &Scheduler{store: s, registry: reg, clock: clock.New()}
	for _, opt := range opts {
		opt(sch)
	}
	return sch
}

// scheduleOptions collects ScheduleOption values.
type scheduleOptions struct {
	logicalID string
	bucket    string
}

// ScheduleOption configures a single Schedule call.
type ScheduleOption func(*scheduleOptions)

// WithLogicalID enables deduplication: only the first Schedule call for a
// given (logicalID, bucket) pair actually persists a job. logicalID must
// be a stable string with no embedded wall-clock value; callers that want
// per-occurrence dedup should fold the occurrence into the bucket instead.
func WithLogicalID(logicalID string) ScheduleOption {
	return func(o *scheduleOptions) { o.logicalID = logicalID }
}

// WithBucket sets the dedup bucket explicitly (e.g. a calendar date for a
// once-per-day job). If omitted while WithLogicalID is given, the bucket
// defaults to the scheduler's clock's current UTC date.
func WithBucket(bucket string) ScheduleOption {
	return func(o *scheduleOptions) { o.bucket = bucket }
}

// Schedule validates jobType, optionally reserves a dedup slot, and
// inserts a new pending job record for when. payload is marshaled to JSON.
//
// If logicalID is supplied and the (logicalID, bucket) slot is already
// reserved, Schedule returns Deduplicated and persists nothing — this is
// not an error. If jobType has no registered handler, Schedule returns a
// *ConfigError and persists nothing.
func (s *Scheduler) Schedule(ctx context.Context, jobType string, payload any, when time.Time, opts ...ScheduleOption) (Outcome, error) {
	if _, ok := s.registry.Get(jobType); !ok {
		return Scheduled, &ConfigError{JobType: jobType}
	}

	var o scheduleOptions
	for _, opt := range opts {
		opt(&o)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Scheduled, fmt.Errorf("scheduling: marshal payload for job type %q: %w", jobType, err)
	}

	now := s.clock.Now()
	jobID := id.NewJobID()

	if o.logicalID != "" {
		bucket := o.bucket
		if bucket == "" {
			bucket = now.UTC().Format("2006-01-02")
		}

		ref := store.JobRef{
			PartitionKey: jobqueue.JobPartitionKey,
			SortKey:      jobqueue.MakeSortKey(when, jobID),
		}
		outcome, err := s.store.TryReserve(ctx, o.logicalID, bucket, ref, now)
		if err != nil {
			return Scheduled, fmt.Errorf("scheduling: reserve dedup slot for %q/%q: %w", o.logicalID, bucket, err)
		}
		if outcome == store.AlreadyReserved {
			return Deduplicated, nil
		}
	}

	rec := &jobqueue.Record{
		JobID:        jobID,
		JobType:      jobType,
		Payload:      json.RawMessage(body),
		ScheduledFor: when,
		Status:       jobqueue.StatusPending,
		CreatedAt:    now,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return Scheduled, fmt.Errorf("scheduling: insert job %s: %w", jobID, err)
	}

	return Scheduled, nil
}
