// Package db defines the storage-facing types and interfaces shared by the
// credential, idempotency, publish, worker and reaper components. Concrete
// backends (db/sqlite) implement these interfaces.
package db

import (
	"time"
)

// User mirrors spec.md §3's User entity. PasswordHash is always a
// well-formed PHC-encoded Argon2id string, never plaintext.
type User struct {
	ID           string
	Username     string
	PasswordHash string
}

// Subscription status values. Only StatusConfirmed subscriptions are
// eligible for newsletter delivery.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusConfirmed           = "confirmed"
)

// Subscription mirrors spec.md §3's Subscription entity.
type Subscription struct {
	ID            string
	Email         string
	Name          string
	SubscribedAt  time.Time
	Status        string
}

// NewsletterIssue mirrors spec.md §3's NewsletterIssue entity. Immutable
// once inserted.
type NewsletterIssue struct {
	ID          string
	Title       string
	TextContent string
	HTMLContent string
	PublishedAt time.Time
}

// DeliveryTask mirrors spec.md §3's DeliveryTask entity. Composite primary
// key (NewsletterIssueID, SubscriberEmail).
type DeliveryTask struct {
	NewsletterIssueID  string
	SubscriberEmail    string
	NRetries           int16
	ExecuteAfter       time.Time // zero value means NULL (fire immediately)
	ExecuteAfterInSecs *int32
}

// HasExecuteAfter reports whether the task carries a non-null
// execute_after timestamp.
func (t DeliveryTask) HasExecuteAfter() bool {
	return !t.ExecuteAfter.IsZero()
}

// ResponseHeader is one (name, value) pair of a cached HTTP response.
// Kept as raw bytes so replay preserves the exact wire representation,
// never re-serialized through a typed header map that could reorder or
// canonicalize entries.
type ResponseHeader struct {
	Name  string
	Value []byte
}

// SavedResponse is the cached effect of a successfully processed
// idempotent request: status code, headers and body, byte for byte.
type SavedResponse struct {
	StatusCode int
	Headers    []ResponseHeader
	Body       []byte
}

// IdempotencyRecord mirrors spec.md §3's IdempotencyRecord entity.
// Composite primary key (UserID, IdempotencyKey). Two logical states:
// in-flight (Response == nil) and saved (Response != nil).
type IdempotencyRecord struct {
	UserID         string
	IdempotencyKey string
	Response       *SavedResponse
	CreatedAt      time.Time
}

// DeliveryDeadLetter is the supplemented observational record of a
// delivery task that the worker gave up on (spec.md §9 open question).
// Append-only, never consulted by delivery-affecting code.
type DeliveryDeadLetter struct {
	NewsletterIssueID string
	SubscriberEmail   string
	LastError         string
	AttemptsMade      int
	CreatedAt         time.Time
}

// Email verification / subscription-confirmation payloads are not part of
// this core (that flow is out of scope per spec.md §1) and are
// intentionally absent; see SPEC_FULL.md Non-goals.
