package dynamo

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/id"
	"github.com/eykd/companion-memory/jobqueue"
	"github.com/eykd/companion-memory/store"
)

// conditionFailed builds the sentinel error Store treats as "lost race".
func conditionFailed() error {
	return awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "condition failed", nil)
}

func TestIsConditionFailed(t *testing.T) {
	assert.True(t, isConditionFailed(conditionFailed()))
	assert.False(t, isConditionFailed(assert.AnError))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(awserr.New(dynamodb.ErrCodeProvisionedThroughputExceededException, "slow down", nil)))
	assert.True(t, isTransient(awserr.New("ThrottlingException", "slow down", nil)))
	assert.False(t, isTransient(conditionFailed()))
	assert.False(t, isTransient(assert.AnError))
}

func TestToItemFromItemRoundTrip(t *testing.T) {
	now := time.Date(2025, 7, 14, 7, 0, 0, 0, time.UTC)
	expires := now.Add(time.Minute)
	rec := &jobqueue.Record{
		JobID:         id.NewJobID(),
		JobType:       "daily_summary",
		Payload:       []byte(`{"user_id":"U1"}`),
		ScheduledFor:  now,
		Status:        jobqueue.StatusInProgress,
		Attempts:      2,
		LockedBy:      "worker-abc",
		LockExpiresAt: &expires,
		LastError:     "boom",
		CreatedAt:     now.Add(-time.Hour),
	}

	it := toItem(rec)
	assert.Equal(t, jobqueue.JobPartitionKey, it.PK)
	assert.Equal(t, jobqueue.MakeSortKey(now, rec.JobID), it.SK)

	back, err := fromItem(it)
	require.NoError(t, err)
	assert.Equal(t, rec.JobID, back.JobID)
	assert.Equal(t, rec.JobType, back.JobType)
	assert.Equal(t, rec.Status, back.Status)
	assert.Equal(t, rec.Attempts, back.Attempts)
	assert.Equal(t, rec.LockedBy, back.LockedBy)
	assert.WithinDuration(t, *rec.LockExpiresAt, *back.LockExpiresAt, time.Microsecond)
	assert.Equal(t, rec.LastError, back.LastError)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	s := &Store{table: "t"}

	attempts := 0
	err := s.do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return awserr.New(dynamodb.ErrCodeProvisionedThroughputExceededException, "slow down", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryConditionFailure(t *testing.T) {
	s := &Store{table: "t"}

	attempts := 0
	err := s.do(context.Background(), func() error {
		attempts++
		return conditionFailed()
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	s := &Store{table: "t"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := s.do(ctx, func() error {
		attempts++
		return awserr.New(dynamodb.ErrCodeInternalServerError, "busy", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDedupItemMarshalRoundTrip(t *testing.T) {
	it := dedupItem{
		PK:         jobqueue.DedupPartitionKey("daily_summary:U1"),
		SK:         "2025-07-14",
		JobPK:      jobqueue.JobPartitionKey,
		JobSK:      "scheduled#2025-07-14T07:00:00.000000Z#abc",
		ReservedAt: time.Now().UTC().Format(timeLayout),
	}

	av, err := dynamodbattribute.MarshalMap(it)
	require.NoError(t, err)

	var back dedupItem
	require.NoError(t, dynamodbattribute.UnmarshalMap(av, &back))
	assert.Equal(t, it, back)
}

var _ store.Store = (*Store)(nil)
