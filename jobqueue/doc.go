// Package jobqueue is the data-model leaf of the scheduler: it has no
// dependency on the store, worker, or registry packages, so any of those
// can import it without cycles.
//
// # Sort-key invariant
//
// A job's sort key is scheduled#<RFC3339-micro-UTC>#<job_id>. Because the
// timestamp component has fixed width and sorts lexicographically, a range
// scan bounded above by DueUpperBound(now) returns exactly the records
// whose scheduled_for <= now — see store.JobStore.QueryDue.
//
// Retries rotate the sort key: MarkFailedForRetry gives the job a new
// ScheduledFor and therefore a new sort key. store/dynamo deletes the old
// item and writes a new one in a single transaction, so "exactly one live
// record per job_id" holds without in-place key renames; store/memory,
// which keys records by job_id, updates the one record in place.
package jobqueue
