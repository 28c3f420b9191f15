// Package worker implements spec.md §4.D: the Delivery Worker. Each
// DeliveryWorker runs a long-lived claim/send/classify loop over the
// delivery queue; worker.Pool runs N of them per process via errgroup,
// mirroring caasmo/restinpieces/queue/scheduler.Scheduler's concurrency
// shape, with a blocking Run(ctx) in place of its Start/Stop/shutdownDone
// lifecycle.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/caasmo/newsletterd/db"
	"github.com/caasmo/newsletterd/notify"
)

// defaults per spec.md §4.D.
const (
	DefaultEmptyQueueSleep     = 10 * time.Second
	DefaultErrorSleep          = 1 * time.Second
	DefaultBackoffSecs   int32 = 30
)

// EmailSender is the subset of emailgateway.Client the worker needs,
// narrowed to an interface so tests can substitute a fake provider.
type EmailSender interface {
	Send(ctx context.Context, fromEmail, toEmail, subject, html, text string) error
}

// Config tunes one DeliveryWorker's loop.
type Config struct {
	FromEmail       string
	EmptyQueueSleep time.Duration
	ErrorSleep      time.Duration
}

func (c *Config) setDefaults() {
	if c.EmptyQueueSleep <= 0 {
		c.EmptyQueueSleep = DefaultEmptyQueueSleep
	}
	if c.ErrorSleep <= 0 {
		c.ErrorSleep = DefaultErrorSleep
	}
}

// DeliveryWorker implements one instance of spec.md §4.D's loop.
type DeliveryWorker struct {
	store    db.QueueStore
	sender   EmailSender
	notifier notify.Notifier
	cfg      Config
	logger   *slog.Logger
}

func New(store db.QueueStore, sender EmailSender, notifier notify.Notifier, cfg Config, logger *slog.Logger) *DeliveryWorker {
	cfg.setDefaults()
	if notifier == nil {
		notifier = notify.NewNilNotifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryWorker{store: store, sender: sender, notifier: notifier, cfg: cfg, logger: logger}
}

// Run blocks, executing Tick repeatedly and sleeping between iterations,
// until ctx is canceled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sleep := w.Tick(ctx)
		if sleep <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// Tick runs one iteration of spec.md §4.D's state machine and returns how
// long the caller should sleep before the next one.
func (w *DeliveryWorker) Tick(ctx context.Context) time.Duration {
	txn, task, ok, err := w.store.ClaimVisible(ctx)
	if err != nil {
		w.logger.Error("worker: claim visible task", "error", err)
		return w.cfg.ErrorSleep
	}
	if !ok {
		return w.cfg.EmptyQueueSleep
	}

	if err := w.process(ctx, txn, *task); err != nil {
		w.logger.Error("worker: process delivery task", "error", err,
			"issue", task.NewsletterIssueID, "subscriber", task.SubscriberEmail)
		return w.cfg.ErrorSleep
	}
	return 0
}

// process implements steps 3-8 of spec.md §4.D for one claimed task.
func (w *DeliveryWorker) process(ctx context.Context, txn db.QueueTxn, task db.DeliveryTask) error {
	issue, err := w.store.GetIssue(ctx, task.NewsletterIssueID)
	if err != nil {
		// Unexpected: leave the row untouched, let it return to visible.
		_ = txn.Rollback()
		return fmt.Errorf("load issue: %w", err)
	}

	if _, perr := mail.ParseAddress(task.SubscriberEmail); perr != nil {
		// Hard failure: data corruption, never transient. Record the
		// give-up and drop the row.
		return w.giveUp(ctx, txn, task, fmt.Sprintf("invalid subscriber email: %v", perr))
	}

	sendErr := w.sender.Send(ctx, w.cfg.FromEmail, task.SubscriberEmail, issue.Title, issue.HTMLContent, issue.TextContent)
	if sendErr == nil {
		if err := txn.Complete(ctx); err != nil {
			return fmt.Errorf("complete delivery task: %w", err)
		}
		return nil
	}

	// Soft failure: provider/network/timeout.
	if task.NRetries <= 1 {
		return w.giveUp(ctx, txn, task, sendErr.Error())
	}

	backoff := DefaultBackoffSecs
	if task.ExecuteAfterInSecs != nil {
		backoff = *task.ExecuteAfterInSecs
	}
	executeAfter := time.Now().UTC().Add(time.Duration(backoff) * time.Second)
	if err := txn.Reschedule(ctx, task.NRetries-1, executeAfter); err != nil {
		return fmt.Errorf("reschedule delivery task: %w", err)
	}
	return nil
}

// giveUp records a dead-letter entry and deletes the claimed row in one
// transaction, then fires a best-effort notification. A notifier failure
// never affects the commit that already happened.
func (w *DeliveryWorker) giveUp(ctx context.Context, txn db.QueueTxn, task db.DeliveryTask, lastErr string) error {
	dl := db.DeliveryDeadLetter{
		NewsletterIssueID: task.NewsletterIssueID,
		SubscriberEmail:   task.SubscriberEmail,
		LastError:         lastErr,
		AttemptsMade:      attemptsMade(task),
		CreatedAt:         time.Now().UTC(),
	}
	if err := txn.RecordDeadLetter(ctx, dl); err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}

	go func(dl db.DeliveryDeadLetter) {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.notifier.Send(notifyCtx, notify.DeadLetter{
			NewsletterIssueID: dl.NewsletterIssueID,
			SubscriberEmail:   dl.SubscriberEmail,
			LastError:         dl.LastError,
			AttemptsMade:      dl.AttemptsMade,
		}); err != nil {
			w.logger.Warn("worker: dead-letter notification failed", "error", err)
		}
	}(dl)

	return nil
}

// attemptsMade can't recover the task's original n_retries (not tracked on
// the row), so it reports the attempt that just exhausted the budget.
func attemptsMade(task db.DeliveryTask) int {
	return int(task.NRetries)
}
