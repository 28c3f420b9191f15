package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/newsletterd/db"
)

// pollInterval and pollTimeout bound how long TryProcessing waits on a
// concurrent claimant's commit before giving up. SQLite has no equivalent
// of Postgres's blocking row lock wait, so a duplicate submission polls
// instead (spec.md §4.B, §9 "Claim semantics").
const (
	pollInterval = 25 * time.Millisecond
	pollTimeout  = 10 * time.Second
)

// publishTxn implements db.PublishTxn. It holds the single writer
// connection for the lifetime of the Publish Coordinator's call: the
// idempotency claim, the issue insert and the delivery fan-out all run
// inside this one BEGIN IMMEDIATE transaction.
type publishTxn struct {
	db     *Db
	conn   *sqlite.Conn
	done   bool
	userID string
	key    string
}

func (d *Db) beginWriter(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := d.takeWriter(ctx)
	if err != nil {
		return nil, err
	}
	if err := sqlitex.ExecTransient(conn, "BEGIN IMMEDIATE;", nil); err != nil {
		d.putWriter(conn)
		return nil, fmt.Errorf("sqlite: begin immediate: %w", err)
	}
	return conn, nil
}

func (t *publishTxn) finish(commit bool) error {
	if t.done {
		return nil
	}
	t.done = true
	stmt := "ROLLBACK;"
	if commit {
		stmt = "COMMIT;"
	}
	err := sqlitex.ExecTransient(t.conn, stmt, nil)
	t.db.putWriter(t.conn)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", stmt, err)
	}
	return nil
}

func (t *publishTxn) Rollback() error {
	return t.finish(false)
}

// InsertIssueAndFanOut implements db.PublishTxn. One INSERT creates the
// issue row; one INSERT ... SELECT fans a DeliveryTask out to every
// confirmed subscriber, all inside the transaction opened by TryProcessing.
func (t *publishTxn) InsertIssueAndFanOut(ctx context.Context, issue db.NewsletterIssue, nRetries int16, executeAfterInSecs *int32) (string, error) {
	err := sqlitex.Exec(t.conn,
		`INSERT INTO newsletter_issues (id, title, text_content, html_content, published_at)
		 VALUES (?, ?, ?, ?, ?)`,
		nil, issue.ID, issue.Title, issue.TextContent, issue.HTMLContent, db.TimeFormat(issue.PublishedAt))
	if err != nil {
		return "", fmt.Errorf("sqlite: insert newsletter issue: %w", err)
	}

	err = sqlitex.Exec(t.conn,
		`INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email, n_retries, execute_after, execute_after_in_secs)
		 SELECT ?, email, ?, NULL, ?
		 FROM subscriptions WHERE status = ?`,
		nil, issue.ID, nRetries, executeAfterInSecs, db.StatusConfirmed)
	if err != nil {
		return "", fmt.Errorf("sqlite: enqueue delivery tasks: %w", err)
	}

	return issue.ID, nil
}

// TryProcessing implements db.IdempotencyStore. It attempts an
// INSERT ... ON CONFLICT DO NOTHING claim; success means the caller owns
// the in-flight row and the open transaction. On conflict the row already
// exists (owned by this or a prior request): a completed row returns its
// saved response immediately, an in-flight row is polled until the
// concurrent writer commits or pollTimeout elapses.
func (d *Db) TryProcessing(ctx context.Context, userID, key string) (db.PublishTxn, *db.SavedResponse, bool, error) {
	conn, err := d.beginWriter(ctx)
	if err != nil {
		return nil, nil, false, err
	}

	err = sqlitex.Exec(conn,
		`INSERT INTO idempotency (user_id, idempotency_key, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
		nil, userID, key, db.TimeFormat(time.Now()))
	if err != nil {
		_ = sqlitex.ExecTransient(conn, "ROLLBACK;", nil)
		d.putWriter(conn)
		return nil, nil, false, fmt.Errorf("sqlite: claim idempotency key: %w", err)
	}

	if conn.Changes() == 1 {
		// We own the slot; caller holds the transaction until SaveResponse
		// or Rollback.
		return &publishTxn{db: d, conn: conn, userID: userID, key: key}, nil, true, nil
	}

	// Someone else already holds or has finished this key. Release the
	// write lock immediately; we only needed it to attempt the insert.
	_ = sqlitex.ExecTransient(conn, "ROLLBACK;", nil)
	d.putWriter(conn)

	saved, err := d.pollSavedResponse(ctx, userID, key)
	if err != nil {
		return nil, nil, false, err
	}
	return nil, saved, false, nil
}

func (d *Db) pollSavedResponse(ctx context.Context, userID, key string) (*db.SavedResponse, error) {
	deadline := time.Now().Add(pollTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		saved, err := d.GetSavedResponse(ctx, userID, key)
		if err != nil {
			return nil, err
		}
		if saved != nil {
			return saved, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("sqlite: timed out waiting for idempotent response (user=%s key=%s)", userID, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SaveResponse implements db.IdempotencyStore: writes resp onto the
// in-flight row opened by TryProcessing and commits txn.
func (d *Db) SaveResponse(ctx context.Context, txn db.PublishTxn, userID, key string, resp db.SavedResponse) error {
	t, ok := txn.(*publishTxn)
	if !ok {
		return fmt.Errorf("sqlite: save response: txn from a different backend")
	}

	headersJSON, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("sqlite: marshal response headers: %w", err)
	}

	err = sqlitex.Exec(t.conn,
		`UPDATE idempotency SET response_status = ?, response_headers = ?, response_body = ?
		 WHERE user_id = ? AND idempotency_key = ?`,
		nil, resp.StatusCode, string(headersJSON), resp.Body, userID, key)
	if err != nil {
		_ = t.finish(false)
		return fmt.Errorf("sqlite: save response: %w", err)
	}

	return t.finish(true)
}

// GetSavedResponse implements db.IdempotencyStore. A nil, nil result means
// either no such row or a row still in flight (response_status IS NULL).
func (d *Db) GetSavedResponse(ctx context.Context, userID, key string) (*db.SavedResponse, error) {
	var saved *db.SavedResponse
	err := d.takeReader(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn,
			`SELECT response_status, response_headers, response_body,
			        (response_status IS NULL) AS still_pending
			 FROM idempotency WHERE user_id = ? AND idempotency_key = ? LIMIT 1`,
			func(stmt *sqlite.Stmt) error {
				if stmt.GetInt64("still_pending") != 0 {
					return nil
				}
				var headers []db.ResponseHeader
				if h := stmt.GetText("response_headers"); h != "" {
					if err := json.Unmarshal([]byte(h), &headers); err != nil {
						return fmt.Errorf("unmarshal response headers: %w", err)
					}
				}
				body := make([]byte, stmt.GetLen("response_body"))
				stmt.GetBytes("response_body", body)
				saved = &db.SavedResponse{
					StatusCode: int(stmt.GetInt64("response_status")),
					Headers:    headers,
					Body:       body,
				}
				return nil
			}, userID, key)
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: get saved response: %w", err)
	}
	return saved, nil
}

// DeleteStale implements db.IdempotencyStore, used by package reaper to
// bound the table's growth (SPEC_FULL.md §3 4.E).
func (d *Db) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	conn, err := d.takeWriter(ctx)
	if err != nil {
		return 0, err
	}
	defer d.putWriter(conn)

	err = sqlitex.Exec(conn,
		`DELETE FROM idempotency WHERE created_at < ?`,
		nil, db.TimeFormat(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete stale idempotency rows: %w", err)
	}
	return conn.Changes(), nil
}
