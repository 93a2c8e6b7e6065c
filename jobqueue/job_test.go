package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eykd/companion-memory/id"
)

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusDeadLetter, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []Status{StatusPending, StatusInProgress, StatusFailed}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}
}

func TestHasExpiredLease(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var noLease Record
	assert.True(t, noLease.HasExpiredLease(now))

	future := now.Add(time.Minute)
	active := Record{LockExpiresAt: &future}
	assert.False(t, active.HasExpiredLease(now))

	past := now.Add(-time.Minute)
	expired := Record{LockExpiresAt: &past}
	assert.True(t, expired.HasExpiredLease(now))
}

func TestRecordCloneIsIndependent(t *testing.T) {
	lockExpiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	completed := lockExpiry.Add(time.Hour)
	orig := &Record{
		JobID:         id.NewJobID(),
		JobType:       "daily_summary",
		Status:        StatusInProgress,
		LockExpiresAt: &lockExpiry,
		CompletedAt:   &completed,
	}

	clone := orig.Clone()
	assert.Equal(t, orig.JobID, clone.JobID)
	assert.Equal(t, *orig.LockExpiresAt, *clone.LockExpiresAt)

	*clone.LockExpiresAt = clone.LockExpiresAt.Add(time.Hour)
	*clone.CompletedAt = clone.CompletedAt.Add(time.Hour)

	assert.NotEqual(t, *orig.LockExpiresAt, *clone.LockExpiresAt)
	assert.NotEqual(t, *orig.CompletedAt, *clone.CompletedAt)
}
