package db

import (
	"context"
	"time"
)

// CredentialStore backs package credentials. GetUserByUsername returning
// ErrNotFound is not itself an auth failure; the caller still runs the
// dummy-hash verification branch to equalize timing (spec.md §9).
type CredentialStore interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// PublishTxn is the open transaction/row-lock handed back by
// TryProcessing's StartProcessing outcome. It is the single transaction
// spanning the idempotency claim, the issue insert and the delivery
// fan-out (spec.md §9's transactional outbox): the Publish Coordinator
// never opens a second transaction. It MUST be finalized by exactly one
// of IdempotencyStore.SaveResponse (commit) or Rollback.
type PublishTxn interface {
	// InsertIssueAndFanOut inserts one NewsletterIssue row and one
	// DeliveryTask per confirmed subscription in a single INSERT ...
	// SELECT, inside this transaction. Returns the generated issue ID.
	InsertIssueAndFanOut(ctx context.Context, issue NewsletterIssue, nRetries int16, executeAfterInSecs *int32) (issueID string, err error)

	Rollback() error
}

// IdempotencyStore backs package idempotency. All operations are scoped
// by (userID, key); see spec.md §4.B for the claim protocol.
type IdempotencyStore interface {
	// TryProcessing attempts to claim the (userID, key) slot. ok reports
	// whether the caller owns the slot (txn is non-nil and must be
	// finalized); when ok is false, saved holds the previously recorded
	// response (possibly after blocking on a concurrent writer's commit).
	TryProcessing(ctx context.Context, userID, key string) (txn PublishTxn, saved *SavedResponse, ok bool, err error)

	// SaveResponse persists resp on the in-flight row opened by txn and
	// commits it.
	SaveResponse(ctx context.Context, txn PublishTxn, userID, key string, resp SavedResponse) error

	// GetSavedResponse is a read-only diagnostic lookup; never called by
	// the claim protocol itself.
	GetSavedResponse(ctx context.Context, userID, key string) (*SavedResponse, error)

	// DeleteStale removes idempotency rows created before cutoff. Used by
	// package reaper.
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}

// QueueStore backs package worker.
type QueueStore interface {
	// ClaimVisible claims at most one visible DeliveryTask (execute_after
	// IS NULL OR execute_after < now) for exclusive processing and opens
	// a transaction over it. ok is false when the queue has no visible
	// task; the caller must still Rollback a non-nil txn in that case if
	// one was returned (backends may return nil, true-less, nil-safe).
	ClaimVisible(ctx context.Context) (txn QueueTxn, task *DeliveryTask, ok bool, err error)

	// GetIssue loads a NewsletterIssue by id.
	GetIssue(ctx context.Context, issueID string) (*NewsletterIssue, error)
}

// QueueTxn is the transaction opened by ClaimVisible. Exactly one of
// Complete, Reschedule or Rollback must be called.
type QueueTxn interface {
	// Complete deletes the claimed task and commits. Used on send
	// success; hard failures go through RecordDeadLetter.
	Complete(ctx context.Context) error

	// Reschedule decrements n_retries and sets execute_after, then
	// commits. Used on soft failures while retries remain.
	Reschedule(ctx context.Context, nRetries int16, executeAfter time.Time) error

	// RecordDeadLetter deletes the claimed task, inserts a
	// DeliveryDeadLetter row, and commits. Used on hard failures and on
	// soft-failure retry exhaustion (spec.md §9 open question,
	// supplemented by SPEC_FULL.md §3 4.D).
	RecordDeadLetter(ctx context.Context, dl DeliveryDeadLetter) error

	// Rollback releases the claim without mutating the row, returning it
	// to the visible set. Used on unexpected errors.
	Rollback() error
}
