package jobqueue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/id"
	"github.com/eykd/companion-memory/jobqueue"
)

func TestMakeSortKey_RoundTrips(t *testing.T) {
	jobID := id.NewJobID()
	scheduledFor := time.Date(2025, 7, 14, 7, 0, 0, 123456000, time.UTC)

	sk := jobqueue.MakeSortKey(scheduledFor, jobID)
	assert.Contains(t, sk, "scheduled#")

	gotTime, gotID, err := jobqueue.ParseSortKey(sk)
	require.NoError(t, err)
	assert.Equal(t, jobID, gotID)
	assert.True(t, scheduledFor.Equal(gotTime))
}

func TestDueUpperBound_OrdersCorrectly(t *testing.T) {
	t1 := time.Date(2025, 7, 14, 7, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 7, 14, 7, 0, 1, 0, time.UTC)

	jobID := id.NewJobID()
	skEarlier := jobqueue.MakeSortKey(t1, jobID)
	skLater := jobqueue.MakeSortKey(t2, jobID)

	upper := jobqueue.DueUpperBound(t1.Add(500 * time.Millisecond))

	assert.Less(t, skEarlier, upper)
	assert.Greater(t, skLater, upper)
}

func TestParseSortKey_Invalid(t *testing.T) {
	_, _, err := jobqueue.ParseSortKey("not-a-sort-key")
	assert.Error(t, err)
}
