package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/id"
	"github.com/eykd/companion-memory/jobqueue"
	"github.com/eykd/companion-memory/store"
	"github.com/eykd/companion-memory/store/memory"
)

func newRecord(t *testing.T, scheduledFor time.Time) *jobqueue.Record {
	t.Helper()
	jobID := id.NewJobID()
	return &jobqueue.Record{
		JobID:        jobID,
		JobType:      "heartbeat_event",
		Payload:      []byte(`{}`),
		ScheduledFor: scheduledFor,
		Status:       jobqueue.StatusPending,
		CreatedAt:    scheduledFor,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()
	rec := newRecord(t, now)

	require.NoError(t, s.Insert(ctx, rec))

	got, err := s.Get(ctx, rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, rec.JobType, got.JobType)

	err = s.Insert(ctx, rec)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestStore_QueryDue_OnlyReturnsPendingPastDue(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	past := newRecord(t, now.Add(-time.Minute))
	future := newRecord(t, now.Add(time.Hour))
	require.NoError(t, s.Insert(ctx, past))
	require.NoError(t, s.Insert(ctx, future))

	due, err := s.QueryDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, past.JobID, due[0].JobID)
}

func TestStore_Claim_OnlyOneWinner(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()
	rec := newRecord(t, now.Add(-time.Second))
	require.NoError(t, s.Insert(ctx, rec))

	workerA := id.NewWorkerID()
	workerB := id.NewWorkerID()

	resultA, err := s.Claim(ctx, rec, workerA, time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, store.ClaimWon, resultA)

	resultB, err := s.Claim(ctx, rec, workerB, time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, store.ClaimLost, resultB)
}

func TestStore_Claim_ReclaimableAfterLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()
	rec := newRecord(t, now.Add(-time.Second))
	require.NoError(t, s.Insert(ctx, rec))

	workerA := id.NewWorkerID()
	workerB := id.NewWorkerID()

	_, err := s.Claim(ctx, rec, workerA, time.Second, now)
	require.NoError(t, err)

	later := now.Add(5 * time.Second)
	result, err := s.Claim(ctx, rec, workerB, time.Minute, later)
	require.NoError(t, err)
	assert.Equal(t, store.ClaimWon, result)
}

func TestStore_MarkFailedForRetry_RotatesScheduledFor(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()
	rec := newRecord(t, now.Add(-time.Second))
	require.NoError(t, s.Insert(ctx, rec))

	worker := id.NewWorkerID()
	_, err := s.Claim(ctx, rec, worker, time.Minute, now)
	require.NoError(t, err)

	nextRun := now.Add(time.Minute)
	require.NoError(t, s.MarkFailedForRetry(ctx, rec.JobID, worker, nextRun, "boom"))

	got, err := s.Get(ctx, rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.StatusPending, got.Status)
	assert.True(t, nextRun.Equal(got.ScheduledFor))
	assert.Equal(t, "boom", got.LastError)
}

func TestStore_TryReserve_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ref := store.JobRef{PartitionKey: jobqueue.JobPartitionKey, SortKey: "scheduled#x#y"}

	outcome, err := s.TryReserve(ctx, "daily_summary:alice", "2025-07-14", ref, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, store.Reserved, outcome)

	outcome, err = s.TryReserve(ctx, "daily_summary:alice", "2025-07-14", ref, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, store.AlreadyReserved, outcome)
}

func TestStore_Lock_AcquireRefreshRelease(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	ok, err := s.Acquire(ctx, "proc-a", time.Minute, now, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Acquire(ctx, "proc-b", time.Minute, now, nil)
	require.NoError(t, err)
	assert.False(t, ok, "second acquirer must not win while lock is held")

	ok, err = s.Refresh(ctx, "proc-a", time.Minute, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Release(ctx, "proc-a"))

	ok, err = s.Acquire(ctx, "proc-b", time.Minute, now.Add(31*time.Second), nil)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be acquirable once released")
}

func TestStore_Lock_AcquirableAfterExpiry(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()

	_, err := s.Acquire(ctx, "proc-a", time.Second, now, nil)
	require.NoError(t, err)

	ok, err := s.Acquire(ctx, "proc-b", time.Minute, now.Add(5*time.Second), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
