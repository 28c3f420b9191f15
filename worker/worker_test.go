package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caasmo/newsletterd/db"
)

func issue() *db.NewsletterIssue {
	return &db.NewsletterIssue{ID: "issue-1", Title: "Hi", TextContent: "t", HTMLContent: "<p>h</p>"}
}

func TestTick_EmptyQueueSleeps(t *testing.T) {
	store := &mockQueueStore{
		ClaimVisibleFunc: func(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error) {
			return nil, nil, false, nil
		},
	}
	w := New(store, &mockSender{}, nil, Config{}, nil)
	assert.Equal(t, DefaultEmptyQueueSleep, w.Tick(context.Background()))
}

func TestTick_SendSuccessCompletes(t *testing.T) {
	task := db.DeliveryTask{NewsletterIssueID: "issue-1", SubscriberEmail: "jane@example.com", NRetries: 3}
	txn := &mockQueueTxn{}
	store := &mockQueueStore{
		ClaimVisibleFunc: func(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error) {
			return txn, &task, true, nil
		},
		GetIssueFunc: func(ctx context.Context, issueID string) (*db.NewsletterIssue, error) {
			return issue(), nil
		},
	}
	sender := &mockSender{}
	w := New(store, sender, nil, Config{}, nil)

	sleep := w.Tick(context.Background())
	assert.Equal(t, time.Duration(0), sleep)
	assert.Equal(t, 1, sender.Calls)
	assert.True(t, txn.Completed)
}

func TestTick_SoftFailureReschedulesWithConstantBackoff(t *testing.T) {
	task := db.DeliveryTask{NewsletterIssueID: "issue-1", SubscriberEmail: "jane@example.com", NRetries: 3}
	txn := &mockQueueTxn{}
	store := &mockQueueStore{
		ClaimVisibleFunc: func(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error) {
			return txn, &task, true, nil
		},
		GetIssueFunc: func(ctx context.Context, issueID string) (*db.NewsletterIssue, error) {
			return issue(), nil
		},
	}
	sender := &mockSender{SendFunc: func(ctx context.Context, from, to, subject, html, text string) error {
		return errors.New("502 bad gateway")
	}}
	w := New(store, sender, nil, Config{}, nil)

	before := time.Now().UTC()
	w.Tick(context.Background())
	require.NotNil(t, txn.Rescheduled)
	assert.Equal(t, int16(2), txn.Rescheduled.NRetries)
	assert.WithinDuration(t, before.Add(time.Duration(DefaultBackoffSecs)*time.Second), txn.Rescheduled.ExecuteAfter, time.Second)
	assert.False(t, txn.Completed)
	assert.Nil(t, txn.DeadLettered)
}

func TestTick_SoftFailureExhaustionGivesUp(t *testing.T) {
	task := db.DeliveryTask{NewsletterIssueID: "issue-1", SubscriberEmail: "jane@example.com", NRetries: 1}
	txn := &mockQueueTxn{}
	store := &mockQueueStore{
		ClaimVisibleFunc: func(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error) {
			return txn, &task, true, nil
		},
		GetIssueFunc: func(ctx context.Context, issueID string) (*db.NewsletterIssue, error) {
			return issue(), nil
		},
	}
	sender := &mockSender{SendFunc: func(ctx context.Context, from, to, subject, html, text string) error {
		return errors.New("502 bad gateway")
	}}
	w := New(store, sender, nil, Config{}, nil)

	w.Tick(context.Background())
	require.NotNil(t, txn.DeadLettered)
	assert.Equal(t, "issue-1", txn.DeadLettered.NewsletterIssueID)
	assert.Nil(t, txn.Rescheduled)
}

func TestTick_InvalidEmailHardFailureNoProviderCall(t *testing.T) {
	task := db.DeliveryTask{NewsletterIssueID: "issue-1", SubscriberEmail: "me.mail.com", NRetries: 3}
	txn := &mockQueueTxn{}
	store := &mockQueueStore{
		ClaimVisibleFunc: func(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error) {
			return txn, &task, true, nil
		},
		GetIssueFunc: func(ctx context.Context, issueID string) (*db.NewsletterIssue, error) {
			return issue(), nil
		},
	}
	sender := &mockSender{}
	w := New(store, sender, nil, Config{}, nil)

	w.Tick(context.Background())
	assert.Equal(t, 0, sender.Calls)
	require.NotNil(t, txn.DeadLettered)
}
