// Package dynamo implements store.Store over a DynamoDB-shaped backend
// using the classic aws-sdk-go client. It is the production backend; the
// conditional-write preconditions documented on store.JobStore,
// store.DedupStore, and store.LockStore map directly onto DynamoDB
// ConditionExpressions.
//
// The base table's key schema is PK (partition, string) + SK (sort,
// string), exactly as spec.md §3.2 describes. Because several JobStore
// operations (RenewLease, MarkCompleted, MarkFailedForRetry,
// MarkDeadLetter, Cancel) are addressed by job_id alone — the sort key
// also embeds scheduled_for, which the caller does not carry at that
// point — this backend requires a global secondary index named
// job-id-index, partitioned on job_id, projecting PK and SK. Every one of
// those operations first queries the index to recover the base table's
// key, then performs the conditional write against the base table.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/eykd/companion-memory/id"
	"github.com/eykd/companion-memory/jobqueue"
	"github.com/eykd/companion-memory/store"
)

// JobIDIndexName is the name of the GSI partitioned on job_id that this
// backend requires on the table.
const JobIDIndexName = "job-id-index"

var _ store.Store = (*Store)(nil)

// Store is a store.Store implementation backed by a single DynamoDB
// table. It depends on dynamodbiface.DynamoDBAPI rather than the
// concrete client so tests can substitute a stub.
type Store struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// New builds a Store over an already-configured DynamoDB client.
func New(client dynamodbiface.DynamoDBAPI, table string) *Store {
	return &Store{client: client, table: table}
}

// NewFromRegion builds a Store by creating a session for the given AWS
// region. It is the constructor cmd/* wires up from config.Config.
func NewFromRegion(region, table string) (*Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("dynamo: create session: %w", err)
	}
	return New(dynamodb.New(sess), table), nil
}

// jobItem is the DynamoDB item shape for a job record.
type jobItem struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	JobID         string `dynamodbav:"job_id"`
	JobType       string `dynamodbav:"job_type"`
	Payload       []byte `dynamodbav:"payload"`
	ScheduledFor  string `dynamodbav:"scheduled_for"`
	Status        string `dynamodbav:"status"`
	Attempts      int    `dynamodbav:"attempts"`
	LockedBy      string `dynamodbav:"locked_by,omitempty"`
	LockExpiresAt string `dynamodbav:"lock_expires_at,omitempty"`
	LastError     string `dynamodbav:"last_error,omitempty"`
	CreatedAt     string `dynamodbav:"created_at"`
	CompletedAt   string `dynamodbav:"completed_at,omitempty"`
}

// timeLayout is fixed-width (unlike time.RFC3339Nano, which trims
// trailing fractional-second zeros), matching jobqueue's sort-key time
// format. Every comparison against a formatted timestamp in this package
// is either a Go string comparison (QueryDue's lease-staleness filter) or
// a DynamoDB ConditionExpression evaluated as a string server-side
// (Claim, lock Acquire); both require fixed width to agree with
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func toItem(rec *jobqueue.Record) jobItem {
	it := jobItem{
		PK:           jobqueue.JobPartitionKey,
		SK:           jobqueue.MakeSortKey(rec.ScheduledFor, rec.JobID),
		JobID:        rec.JobID.String(),
		JobType:      rec.JobType,
		Payload:      []byte(rec.Payload),
		ScheduledFor: rec.ScheduledFor.UTC().Format(timeLayout),
		Status:       string(rec.Status),
		Attempts:     rec.Attempts,
		LockedBy:     rec.LockedBy.String(),
		LastError:    rec.LastError,
		CreatedAt:    rec.CreatedAt.UTC().Format(timeLayout),
	}
	if rec.LockExpiresAt != nil {
		it.LockExpiresAt = rec.LockExpiresAt.UTC().Format(timeLayout)
	}
	if rec.CompletedAt != nil {
		it.CompletedAt = rec.CompletedAt.UTC().Format(timeLayout)
	}
	return it
}

func fromItem(it jobItem) (*jobqueue.Record, error) {
	scheduledFor, err := time.Parse(timeLayout, it.ScheduledFor)
	if err != nil {
		return nil, fmt.Errorf("dynamo: parse scheduled_for: %w", err)
	}
	createdAt, err := time.Parse(timeLayout, it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("dynamo: parse created_at: %w", err)
	}

	rec := &jobqueue.Record{
		JobID:        id.JobID(it.JobID),
		JobType:      it.JobType,
		Payload:      it.Payload,
		ScheduledFor: scheduledFor,
		Status:       jobqueue.Status(it.Status),
		Attempts:     it.Attempts,
		LockedBy:     id.WorkerID(it.LockedBy),
		LastError:    it.LastError,
		CreatedAt:    createdAt,
	}
	if it.LockExpiresAt != "" {
		t, err := time.Parse(timeLayout, it.LockExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("dynamo: parse lock_expires_at: %w", err)
		}
		rec.LockExpiresAt = &t
	}
	if it.CompletedAt != "" {
		t, err := time.Parse(timeLayout, it.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("dynamo: parse completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}
	return rec, nil
}

// ──────────────────────────────────────────────────
// JobStore
// ──────────────────────────────────────────────────

// Insert writes a new job item, failing with store.ErrAlreadyExists if
// the partition+sort key is already occupied.
func (s *Store) Insert(ctx context.Context, rec *jobqueue.Record) error {
	av, err := dynamodbattribute.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("dynamo: marshal job item: %w", err)
	}

	err = s.do(ctx, func() error {
		_, err := s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
		return err
	})
	if isConditionFailed(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// Get looks up the live record for jobID via the job-id GSI, then reads
// the full item from the base table.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*jobqueue.Record, error) {
	key, err := s.lookupKey(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var out *dynamodb.GetItemOutput
	err = s.do(ctx, func() error {
		var getErr error
		out, getErr = s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(key.PK)},
				"SK": {S: aws.String(key.SK)},
			},
		})
		return getErr
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}

	var it jobItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal job item: %w", err)
	}
	return fromItem(it)
}

// QueryDue scans the job partition up to the due-time upper bound,
// filtering in the query itself where DynamoDB expressions allow it and
// in memory for the lease-staleness check that needs "now" compared
// against an optional attribute.
func (s *Store) QueryDue(ctx context.Context, now time.Time, limit int) ([]*jobqueue.Record, error) {
	nowStr := now.UTC().Format(timeLayout)

	var due []*jobqueue.Record
	var lastKey map[string]*dynamodb.AttributeValue

	for {
		var out *dynamodb.QueryOutput
		err := s.do(ctx, func() error {
			var queryErr error
			out, queryErr = s.client.QueryWithContext(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(s.table),
				KeyConditionExpression: aws.String("PK = :pk AND SK <= :upper"),
				FilterExpression:       aws.String("#status = :pending OR #status = :inprogress"),
				ExpressionAttributeNames: map[string]*string{
					"#status": aws.String("status"),
				},
				ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
					":pk":         {S: aws.String(jobqueue.JobPartitionKey)},
					":upper":      {S: aws.String(jobqueue.DueUpperBound(now))},
					":pending":    {S: aws.String(string(jobqueue.StatusPending))},
					":inprogress": {S: aws.String(string(jobqueue.StatusInProgress))},
				},
				ExclusiveStartKey: lastKey,
			})
			return queryErr
		})
		if err != nil {
			return nil, err
		}

		for _, av := range out.Items {
			var it jobItem
			if err := dynamodbattribute.UnmarshalMap(av, &it); err != nil {
				return nil, fmt.Errorf("dynamo: unmarshal job item: %w", err)
			}
			if it.LockExpiresAt != "" && it.LockExpiresAt >= nowStr {
				continue
			}
			rec, err := fromItem(it)
			if err != nil {
				return nil, err
			}
			due = append(due, rec)
			if limit > 0 && len(due) >= limit {
				return due, nil
			}
		}

		lastKey = out.LastEvaluatedKey
		if len(lastKey) == 0 {
			break
		}
	}
	return due, nil
}

// Claim conditionally transitions a pending or in-progress record whose
// lease is absent or stale to in_progress.
func (s *Store) Claim(ctx context.Context, rec *jobqueue.Record, workerID id.WorkerID, lease time.Duration, now time.Time) (store.ClaimResult, error) {
	pk := jobqueue.JobPartitionKey
	sk := jobqueue.MakeSortKey(rec.ScheduledFor, rec.JobID)
	expires := now.Add(lease)

	err := s.do(ctx, func() error {
		_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(pk)},
				"SK": {S: aws.String(sk)},
			},
			UpdateExpression: aws.String(
				"SET #status = :inprogress, locked_by = :worker, lock_expires_at = :expires ADD attempts :one",
			),
			ConditionExpression: aws.String(
				"(#status = :pending OR #status = :inprogress) AND (attribute_not_exists(lock_expires_at) OR lock_expires_at < :now)",
			),
			ExpressionAttributeNames: map[string]*string{
				"#status": aws.String("status"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":inprogress": {S: aws.String(string(jobqueue.StatusInProgress))},
				":pending":    {S: aws.String(string(jobqueue.StatusPending))},
				":worker":     {S: aws.String(workerID.String())},
				":expires":    {S: aws.String(expires.UTC().Format(timeLayout))},
				":now":        {S: aws.String(now.UTC().Format(timeLayout))},
				":one":        {N: aws.String("1")},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return store.ClaimLost, nil
	}
	if err != nil {
		return store.ClaimLost, err
	}
	return store.ClaimWon, nil
}

// RenewLease extends an in-progress job's lease, addressed by job_id via
// the job-id GSI.
func (s *Store) RenewLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration, now time.Time) (store.RenewResult, error) {
	key, err := s.lookupKey(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return store.RenewLost, nil
	}
	if err != nil {
		return store.RenewLost, err
	}

	expires := now.Add(lease)
	err = s.do(ctx, func() error {
		_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(key.PK)},
				"SK": {S: aws.String(key.SK)},
			},
			UpdateExpression:    aws.String("SET lock_expires_at = :expires"),
			ConditionExpression: aws.String("locked_by = :worker AND #status = :inprogress"),
			ExpressionAttributeNames: map[string]*string{
				"#status": aws.String("status"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":expires":    {S: aws.String(expires.UTC().Format(timeLayout))},
				":worker":     {S: aws.String(workerID.String())},
				":inprogress": {S: aws.String(string(jobqueue.StatusInProgress))},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return store.RenewLost, nil
	}
	if err != nil {
		return store.RenewLost, err
	}
	return store.RenewOK, nil
}

// MarkCompleted finalizes a job as completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID id.JobID, workerID id.WorkerID, now time.Time) error {
	key, err := s.lookupKey(ctx, jobID)
	if err != nil {
		return err
	}

	err = s.do(ctx, func() error {
		_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(key.PK)},
				"SK": {S: aws.String(key.SK)},
			},
			UpdateExpression:    aws.String("SET #status = :completed, completed_at = :now REMOVE locked_by, lock_expires_at"),
			ConditionExpression: aws.String("locked_by = :worker"),
			ExpressionAttributeNames: map[string]*string{
				"#status": aws.String("status"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":completed": {S: aws.String(string(jobqueue.StatusCompleted))},
				":now":       {S: aws.String(now.UTC().Format(timeLayout))},
				":worker":    {S: aws.String(workerID.String())},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return store.ErrConditionFailed
	}
	return err
}

// MarkFailedForRetry rotates the job to a new pending item at nextRun,
// deleting the old item in a transaction so polling never observes two
// live records for one job_id.
func (s *Store) MarkFailedForRetry(ctx context.Context, jobID id.JobID, workerID id.WorkerID, nextRun time.Time, lastError string) error {
	rec, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.LockedBy != workerID {
		return store.ErrConditionFailed
	}

	key := baseKey{PK: jobqueue.JobPartitionKey, SK: jobqueue.MakeSortKey(rec.ScheduledFor, rec.JobID)}

	rec.Status = jobqueue.StatusPending
	rec.ScheduledFor = nextRun
	rec.LastError = lastError
	rec.LockedBy = ""
	rec.LockExpiresAt = nil

	newItem, err := dynamodbattribute.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("dynamo: marshal rotated job item: %w", err)
	}

	err = s.do(ctx, func() error {
		_, err := s.client.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{
					Delete: &dynamodb.Delete{
						TableName: aws.String(s.table),
						Key: map[string]*dynamodb.AttributeValue{
							"PK": {S: aws.String(key.PK)},
							"SK": {S: aws.String(key.SK)},
						},
						ConditionExpression: aws.String("locked_by = :worker"),
						ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
							":worker": {S: aws.String(workerID.String())},
						},
					},
				},
				{
					Put: &dynamodb.Put{
						TableName:           aws.String(s.table),
						Item:                newItem,
						ConditionExpression: aws.String("attribute_not_exists(PK)"),
					},
				},
			},
		})
		return err
	})
	if isConditionFailed(err) || isTransactionCanceled(err) {
		return store.ErrConditionFailed
	}
	return err
}

// MarkDeadLetter finalizes a job as dead_letter.
func (s *Store) MarkDeadLetter(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lastError string) error {
	key, err := s.lookupKey(ctx, jobID)
	if err != nil {
		return err
	}

	err = s.do(ctx, func() error {
		_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(key.PK)},
				"SK": {S: aws.String(key.SK)},
			},
			UpdateExpression:    aws.String("SET #status = :dead, last_error = :lasterr REMOVE locked_by, lock_expires_at"),
			ConditionExpression: aws.String("locked_by = :worker"),
			ExpressionAttributeNames: map[string]*string{
				"#status": aws.String("status"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":dead":    {S: aws.String(string(jobqueue.StatusDeadLetter))},
				":lasterr": {S: aws.String(lastError)},
				":worker":  {S: aws.String(workerID.String())},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return store.ErrConditionFailed
	}
	return err
}

// Cancel transitions a pending job to cancelled.
func (s *Store) Cancel(ctx context.Context, jobID id.JobID) error {
	key, err := s.lookupKey(ctx, jobID)
	if err != nil {
		return err
	}

	err = s.do(ctx, func() error {
		_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(key.PK)},
				"SK": {S: aws.String(key.SK)},
			},
			UpdateExpression:    aws.String("SET #status = :cancelled"),
			ConditionExpression: aws.String("#status = :pending"),
			ExpressionAttributeNames: map[string]*string{
				"#status": aws.String("status"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":cancelled": {S: aws.String(string(jobqueue.StatusCancelled))},
				":pending":   {S: aws.String(string(jobqueue.StatusPending))},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return store.ErrConditionFailed
	}
	return err
}

// baseKey is the base table's composite primary key for one item.
type baseKey struct {
	PK string
	SK string
}

// lookupKey resolves jobID to its current base-table key via the job-id
// GSI. Every JobStore operation addressed by job_id alone goes through
// this first.
func (s *Store) lookupKey(ctx context.Context, jobID id.JobID) (baseKey, error) {
	var out *dynamodb.QueryOutput
	err := s.do(ctx, func() error {
		var queryErr error
		out, queryErr = s.client.QueryWithContext(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			IndexName:              aws.String(JobIDIndexName),
			KeyConditionExpression: aws.String("job_id = :id"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":id": {S: aws.String(jobID.String())},
			},
			Limit: aws.Int64(1),
		})
		return queryErr
	})
	if err != nil {
		return baseKey{}, err
	}
	if len(out.Items) == 0 {
		return baseKey{}, store.ErrNotFound
	}

	var it jobItem
	if err := dynamodbattribute.UnmarshalMap(out.Items[0], &it); err != nil {
		return baseKey{}, fmt.Errorf("dynamo: unmarshal GSI item: %w", err)
	}
	return baseKey{PK: it.PK, SK: it.SK}, nil
}

// ──────────────────────────────────────────────────
// DedupStore
// ──────────────────────────────────────────────────

type dedupItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	JobPK      string `dynamodbav:"job_pk"`
	JobSK      string `dynamodbav:"job_sk"`
	ReservedAt string `dynamodbav:"reserved_at"`
}

// TryReserve conditionally writes a dedup entry at (dedup#<logicalID>,
// bucket).
func (s *Store) TryReserve(ctx context.Context, logicalID, bucket string, ref store.JobRef, reservedAt time.Time) (store.DedupOutcome, error) {
	av, err := dynamodbattribute.MarshalMap(dedupItem{
		PK:         jobqueue.DedupPartitionKey(logicalID),
		SK:         bucket,
		JobPK:      ref.PartitionKey,
		JobSK:      ref.SortKey,
		ReservedAt: reservedAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return store.AlreadyReserved, fmt.Errorf("dynamo: marshal dedup item: %w", err)
	}

	err = s.do(ctx, func() error {
		_, err := s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		return err
	})
	if isConditionFailed(err) {
		return store.AlreadyReserved, nil
	}
	if err != nil {
		return store.AlreadyReserved, err
	}
	return store.Reserved, nil
}

// ──────────────────────────────────────────────────
// LockStore
// ──────────────────────────────────────────────────

type lockItem struct {
	PK           string            `dynamodbav:"PK"`
	SK           string            `dynamodbav:"SK"`
	ProcessID    string            `dynamodbav:"process_id"`
	AcquiredAt   string            `dynamodbav:"acquired_at"`
	ExpiresAt    string            `dynamodbav:"expires_at"`
	InstanceInfo map[string]string `dynamodbav:"instance_info,omitempty"`
}

// Acquire conditionally writes the system#scheduler / lock#main record.
func (s *Store) Acquire(ctx context.Context, processID string, ttl time.Duration, now time.Time, instanceInfo map[string]string) (bool, error) {
	av, err := dynamodbattribute.MarshalMap(lockItem{
		PK:           jobqueue.LockPartitionKey,
		SK:           jobqueue.LockSortKey,
		ProcessID:    processID,
		AcquiredAt:   now.UTC().Format(timeLayout),
		ExpiresAt:    now.Add(ttl).UTC().Format(timeLayout),
		InstanceInfo: instanceInfo,
	})
	if err != nil {
		return false, fmt.Errorf("dynamo: marshal lock item: %w", err)
	}

	err = s.do(ctx, func() error {
		_, err := s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK) OR expires_at < :now"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":now": {S: aws.String(now.UTC().Format(timeLayout))},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Refresh extends the lock's expiry if processID still holds it.
func (s *Store) Refresh(ctx context.Context, processID string, ttl time.Duration, now time.Time) (bool, error) {
	err := s.do(ctx, func() error {
		_, err := s.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(jobqueue.LockPartitionKey)},
				"SK": {S: aws.String(jobqueue.LockSortKey)},
			},
			UpdateExpression:    aws.String("SET expires_at = :expires"),
			ConditionExpression: aws.String("process_id = :id"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":expires": {S: aws.String(now.Add(ttl).UTC().Format(timeLayout))},
				":id":      {S: aws.String(processID)},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Release conditionally deletes the lock record.
func (s *Store) Release(ctx context.Context, processID string) error {
	err := s.do(ctx, func() error {
		_, err := s.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(jobqueue.LockPartitionKey)},
				"SK": {S: aws.String(jobqueue.LockSortKey)},
			},
			ConditionExpression: aws.String("process_id = :id"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":id": {S: aws.String(processID)},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

// GetLock returns the current lock holder, or nil if unheld.
func (s *Store) GetLock(ctx context.Context) (*store.LockRecord, error) {
	var out *dynamodb.GetItemOutput
	err := s.do(ctx, func() error {
		var getErr error
		out, getErr = s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				"PK": {S: aws.String(jobqueue.LockPartitionKey)},
				"SK": {S: aws.String(jobqueue.LockSortKey)},
			},
		})
		return getErr
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	var it lockItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal lock item: %w", err)
	}

	acquiredAt, err := time.Parse(timeLayout, it.AcquiredAt)
	if err != nil {
		return nil, fmt.Errorf("dynamo: parse acquired_at: %w", err)
	}
	expiresAt, err := time.Parse(timeLayout, it.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("dynamo: parse expires_at: %w", err)
	}

	return &store.LockRecord{
		ProcessID:    it.ProcessID,
		AcquiredAt:   acquiredAt,
		ExpiresAt:    expiresAt,
		InstanceInfo: it.InstanceInfo,
	}, nil
}

// ──────────────────────────────────────────────────
// Transient-error retry
// ──────────────────────────────────────────────────

const (
	maxTransientRetries = 4
	transientBaseDelay  = 50 * time.Millisecond
)

// do runs op, retrying with exponential-backoff-plus-jitter on throttling
// and other transient errors (spec.md §7 kind 1). Conditional-check
// failures and transaction cancellations are never retried — they are
// benign "lost race" outcomes, not transient faults.
func (s *Store) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		err = op()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == maxTransientRetries {
			break
		}

		delay := time.Duration(float64(transientBaseDelay) * math.Pow(2, float64(attempt)))
		delay += time.Duration(rand.Int63n(int64(transientBaseDelay))) //nolint:gosec // jitter only
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isTransient(err error) bool {
	var awsErr awserr.Error
	if !errors.As(err, &awsErr) {
		return false
	}
	switch awsErr.Code() {
	case dynamodb.ErrCodeProvisionedThroughputExceededException,
		dynamodb.ErrCodeRequestLimitExceeded,
		dynamodb.ErrCodeInternalServerError,
		"ThrottlingException":
		return true
	default:
		return false
	}
}

func isConditionFailed(err error) bool {
	var awsErr awserr.Error
	if !errors.As(err, &awsErr) {
		return false
	}
	return awsErr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

func isTransactionCanceled(err error) bool {
	var awsErr awserr.Error
	if !errors.As(err, &awsErr) {
		return false
	}
	return awsErr.Code() == dynamodb.ErrCodeTransactionCanceledException
}
