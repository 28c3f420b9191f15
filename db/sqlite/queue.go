package sqlite

import (
	"context"
	"fmt"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/newsletterd/db"
)

// queueTxn implements db.QueueTxn over the single writer connection,
// holding the claim on one issue_delivery_queue row for the duration of
// one worker iteration (spec.md §4.D).
type queueTxn struct {
	db     *Db
	conn   *sqlite.Conn
	done   bool
	taskID db.DeliveryTask
}

func (t *queueTxn) finish(stmt string) error {
	if t.done {
		return nil
	}
	t.done = true
	err := sqlitex.ExecTransient(t.conn, stmt, nil)
	t.db.putWriter(t.conn)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", stmt, err)
	}
	return nil
}

func (t *queueTxn) Rollback() error {
	return t.finish("ROLLBACK;")
}

func (t *queueTxn) deleteClaimed() error {
	return sqlitex.Exec(t.conn,
		`DELETE FROM issue_delivery_queue WHERE newsletter_issue_id = ? AND subscriber_email = ?`,
		nil, t.taskID.NewsletterIssueID, t.taskID.SubscriberEmail)
}

// Complete implements db.QueueTxn: deletes the claimed task and commits.
// Used on send success; hard failures go through RecordDeadLetter.
func (t *queueTxn) Complete(ctx context.Context) error {
	if err := t.deleteClaimed(); err != nil {
		_ = t.finish("ROLLBACK;")
		return fmt.Errorf("sqlite: complete delivery task: %w", err)
	}
	return t.finish("COMMIT;")
}

// Reschedule implements db.QueueTxn: decrements n_retries and sets
// execute_after, then commits. Used on soft failures while retries remain.
func (t *queueTxn) Reschedule(ctx context.Context, nRetries int16, executeAfter time.Time) error {
	err := sqlitex.Exec(t.conn,
		`UPDATE issue_delivery_queue SET n_retries = ?, execute_after = ?
		 WHERE newsletter_issue_id = ? AND subscriber_email = ?`,
		nil, nRetries, db.TimeFormat(executeAfter), t.taskID.NewsletterIssueID, t.taskID.SubscriberEmail)
	if err != nil {
		_ = t.finish("ROLLBACK;")
		return fmt.Errorf("sqlite: reschedule delivery task: %w", err)
	}
	return t.finish("COMMIT;")
}

// RecordDeadLetter implements db.QueueTxn: deletes the claimed task,
// records a DeliveryDeadLetter row, and commits. Used on hard failures and
// on soft-failure retry exhaustion (supplemented feature, spec.md §9).
func (t *queueTxn) RecordDeadLetter(ctx context.Context, dl db.DeliveryDeadLetter) error {
	if err := t.deleteClaimed(); err != nil {
		_ = t.finish("ROLLBACK;")
		return fmt.Errorf("sqlite: record dead letter: delete claimed: %w", err)
	}

	err := sqlitex.Exec(t.conn,
		`INSERT INTO delivery_dead_letters
		 (newsletter_issue_id, subscriber_email, last_error, attempts_made, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (newsletter_issue_id, subscriber_email) DO UPDATE SET
		   last_error = excluded.last_error,
		   attempts_made = excluded.attempts_made,
		   created_at = excluded.created_at`,
		nil, dl.NewsletterIssueID, dl.SubscriberEmail, dl.LastError, dl.AttemptsMade, db.TimeFormat(dl.CreatedAt))
	if err != nil {
		_ = t.finish("ROLLBACK;")
		return fmt.Errorf("sqlite: record dead letter: insert: %w", err)
	}
	return t.finish("COMMIT;")
}

// ClaimVisible implements db.QueueStore. BEGIN IMMEDIATE over the sole
// writer connection serializes claims the way Postgres's
// SELECT ... FOR UPDATE SKIP LOCKED would; the claimed row is left in
// place (not yet deleted) until the caller finalizes the returned txn, so
// a crash between claim and finalize simply leaves the row visible again
// once the connection is released and a future claim reopens a txn over
// it (SQLite holds no row lock across process restarts).
func (d *Db) ClaimVisible(ctx context.Context) (db.QueueTxn, *db.DeliveryTask, bool, error) {
	conn, err := d.beginWriter(ctx)
	if err != nil {
		return nil, nil, false, err
	}

	now := db.TimeFormat(time.Now())
	var task *db.DeliveryTask
	err = sqlitex.Exec(conn,
		`SELECT newsletter_issue_id, subscriber_email, n_retries, execute_after, execute_after_in_secs
		 FROM issue_delivery_queue
		 WHERE execute_after IS NULL OR execute_after < ?
		 ORDER BY newsletter_issue_id, subscriber_email
		 LIMIT 1`,
		func(stmt *sqlite.Stmt) error {
			executeAfter, perr := db.TimeParse(stmt.GetText("execute_after"))
			if perr != nil {
				return fmt.Errorf("parse execute_after: %w", perr)
			}
			var executeAfterInSecs *int32
			if stmt.GetText("execute_after_in_secs") != "" {
				v := int32(stmt.GetInt64("execute_after_in_secs"))
				executeAfterInSecs = &v
			}
			task = &db.DeliveryTask{
				NewsletterIssueID:  stmt.GetText("newsletter_issue_id"),
				SubscriberEmail:    stmt.GetText("subscriber_email"),
				NRetries:           int16(stmt.GetInt64("n_retries")),
				ExecuteAfter:       executeAfter,
				ExecuteAfterInSecs: executeAfterInSecs,
			}
			return nil
		}, now)
	if err != nil {
		_ = sqlitex.ExecTransient(conn, "ROLLBACK;", nil)
		d.putWriter(conn)
		return nil, nil, false, fmt.Errorf("sqlite: claim visible task: %w", err)
	}

	if task == nil {
		_ = sqlitex.ExecTransient(conn, "ROLLBACK;", nil)
		d.putWriter(conn)
		return nil, nil, false, nil
	}

	return &queueTxn{db: d, conn: conn, taskID: *task}, task, true, nil
}

// GetIssue implements db.QueueStore.
func (d *Db) GetIssue(ctx context.Context, issueID string) (*db.NewsletterIssue, error) {
	var issue *db.NewsletterIssue
	err := d.takeReader(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn,
			`SELECT id, title, text_content, html_content, published_at FROM newsletter_issues WHERE id = ? LIMIT 1`,
			func(stmt *sqlite.Stmt) error {
				publishedAt, err := db.TimeParse(stmt.GetText("published_at"))
				if err != nil {
					return fmt.Errorf("parse published_at: %w", err)
				}
				issue = &db.NewsletterIssue{
					ID:          stmt.GetText("id"),
					Title:       stmt.GetText("title"),
					TextContent: stmt.GetText("text_content"),
					HTMLContent: stmt.GetText("html_content"),
					PublishedAt: publishedAt,
				}
				return nil
			}, issueID)
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: get issue: %w", err)
	}
	if issue == nil {
		return nil, db.ErrNotFound
	}
	return issue, nil
}
