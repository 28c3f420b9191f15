package sqlite

import (
	"context"
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/newsletterd/db"
)

// CreateSubscription inserts a subscription row. The confirmation-email
// flow that normally drives status from pending to confirmed is out of
// scope (spec.md §1); tests and fixtures call this directly with whichever
// status they need to exercise the fan-out predicate.
func (d *Db) CreateSubscription(ctx context.Context, sub db.Subscription) error {
	if sub.ID == "" || sub.Email == "" || sub.Status == "" {
		return db.ErrMissingFields
	}

	conn, err := d.takeWriter(ctx)
	if err != nil {
		return err
	}
	defer d.putWriter(conn)

	err = sqlitex.Exec(conn,
		`INSERT INTO subscriptions (id, email, name, subscribed_at, status) VALUES (?, ?, ?, ?, ?)`,
		nil, sub.ID, sub.Email, sub.Name, db.TimeFormat(sub.SubscribedAt), sub.Status)
	if err != nil {
		if sqliteErr, ok := err.(sqlite.Error); ok && sqliteErr.Code == sqlite.SQLITE_CONSTRAINT_UNIQUE {
			return db.ErrConstraintUnique
		}
		return fmt.Errorf("sqlite: create subscription: %w", err)
	}
	return nil
}

// GetSubscriptionByEmail is a read-only diagnostic/test lookup.
func (d *Db) GetSubscriptionByEmail(ctx context.Context, email string) (*db.Subscription, error) {
	var sub *db.Subscription
	err := d.takeReader(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn,
			`SELECT id, email, name, subscribed_at, status FROM subscriptions WHERE email = ? LIMIT 1`,
			func(stmt *sqlite.Stmt) error {
				subscribedAt, err := db.TimeParse(stmt.GetText("subscribed_at"))
				if err != nil {
					return fmt.Errorf("parse subscribed_at: %w", err)
				}
				sub = &db.Subscription{
					ID:           stmt.GetText("id"),
					Email:        stmt.GetText("email"),
					Name:         stmt.GetText("name"),
					SubscribedAt: subscribedAt,
					Status:       stmt.GetText("status"),
				}
				return nil
			}, email)
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: get subscription by email: %w", err)
	}
	return sub, nil
}
