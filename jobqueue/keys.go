package jobqueue

import (
	"fmt"
	"strings"
	"time"

	"github.com/eykd/companion-memory/id"
)

// JobPartitionKey is the constant partition key every job record lives
// under. All jobs share one partition; the sort key carries
// the ordering.
const JobPartitionKey = "job"

// sortKeyTimeLayout is a fixed-width, lexicographically-sortable UTC
// timestamp with microsecond precision, so a range scan with upper bound
// "scheduled#<now>#~" returns exactly the due records.
const sortKeyTimeLayout = "2006-01-02T15:04:05.000000Z"

// MakeSortKey builds the job sort key: scheduled#<time>#<job_id>.
func MakeSortKey(scheduledFor time.Time, jobID id.JobID) string {
	return fmt.Sprintf("scheduled#%s#%s", scheduledFor.UTC().Format(sortKeyTimeLayout), jobID)
}

// DueUpperBound returns the sort-key upper bound for a QueryDue(now) scan:
// every record with SK <= this value has scheduled_for <= now. "~" sorts
// after any job_id's hex/dash characters, so it closes the range without
// needing to know the job_id.
func DueUpperBound(now time.Time) string {
	return fmt.Sprintf("scheduled#%s#~", now.UTC().Format(sortKeyTimeLayout))
}

// ParseSortKey extracts the scheduled time and job ID from a job sort key.
func ParseSortKey(sk string) (time.Time, id.JobID, error) {
	parts := strings.SplitN(sk, "#", 3)
	if len(parts) != 3 || parts[0] != "scheduled" {
		return time.Time{}, "", fmt.Errorf("jobqueue: invalid sort key %q", sk)
	}

	scheduledFor, err := time.Parse(sortKeyTimeLayout, parts[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("jobqueue: invalid sort key timestamp %q: %w", sk, err)
	}

	jobID, err := id.ParseJobID(parts[2])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("jobqueue: invalid sort key job id %q: %w", sk, err)
	}

	return scheduledFor, jobID, nil
}

// DedupPartitionKey builds the dedup index partition key for a logical ID.
func DedupPartitionKey(logicalID string) string {
	return "dedup#" + logicalID
}

// LockPartitionKey and LockSortKey are the fixed keys for the singleton
// scheduler lock record.
const (
	LockPartitionKey = "system#scheduler"
	LockSortKey      = "lock#main"
)
