package worker

import (
	"context"
	"time"

	"github.com/caasmo/newsletterd/db"
)

// mockQueueStore implements db.QueueStore for testing purposes.
type mockQueueStore struct {
	ClaimVisibleFunc func(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error)
	GetIssueFunc     func(ctx context.Context, issueID string) (*db.NewsletterIssue, error)
}

func (m *mockQueueStore) ClaimVisible(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error) {
	return m.ClaimVisibleFunc(ctx)
}

func (m *mockQueueStore) GetIssue(ctx context.Context, issueID string) (*db.NewsletterIssue, error) {
	return m.GetIssueFunc(ctx, issueID)
}

// mockQueueTxn implements db.QueueTxn for testing purposes.
type mockQueueTxn struct {
	CompleteFunc         func(ctx context.Context) error
	RescheduleFunc       func(ctx context.Context, nRetries int16, executeAfter time.Time) error
	RecordDeadLetterFunc func(ctx context.Context, dl db.DeliveryDeadLetter) error
	RollbackFunc         func() error

	Completed    bool
	RolledBack   bool
	Rescheduled  *db.DeliveryTask
	DeadLettered *db.DeliveryDeadLetter
}

func (m *mockQueueTxn) Complete(ctx context.Context) error {
	m.Completed = true
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx)
	}
	return nil
}

func (m *mockQueueTxn) Reschedule(ctx context.Context, nRetries int16, executeAfter time.Time) error {
	m.Rescheduled = &db.DeliveryTask{NRetries: nRetries, ExecuteAfter: executeAfter}
	if m.RescheduleFunc != nil {
		return m.RescheduleFunc(ctx, nRetries, executeAfter)
	}
	return nil
}

func (m *mockQueueTxn) RecordDeadLetter(ctx context.Context, dl db.DeliveryDeadLetter) error {
	m.DeadLettered = &dl
	if m.RecordDeadLetterFunc != nil {
		return m.RecordDeadLetterFunc(ctx, dl)
	}
	return nil
}

func (m *mockQueueTxn) Rollback() error {
	m.RolledBack = true
	if m.RollbackFunc != nil {
		return m.RollbackFunc()
	}
	return nil
}

// mockSender implements EmailSender for testing purposes.
type mockSender struct {
	SendFunc func(ctx context.Context, fromEmail, toEmail, subject, html, text string) error
	Calls    int
}

func (m *mockSender) Send(ctx context.Context, fromEmail, toEmail, subject, html, text string) error {
	m.Calls++
	if m.SendFunc != nil {
		return m.SendFunc(ctx, fromEmail, toEmail, subject, html, text)
	}
	return nil
}
