package sqlite

import (
	"context"
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/newsletterd/db"
)

// GetUserByUsername implements db.CredentialStore. A nil, nil return means
// no such user; package credentials still runs the dummy-hash verification
// branch in that case so lookup failure and password failure take the same
// amount of time.
func (d *Db) GetUserByUsername(ctx context.Context, username string) (*db.User, error) {
	var user *db.User
	err := d.takeReader(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Exec(conn,
			`SELECT id, username, password_hash FROM users WHERE username = ? LIMIT 1`,
			func(stmt *sqlite.Stmt) error {
				user = &db.User{
					ID:           stmt.GetText("id"),
					Username:     stmt.GetText("username"),
					PasswordHash: stmt.GetText("password_hash"),
				}
				return nil
			}, username)
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user by username: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user. Exercised by tests seeding the credentials
// store; the publish/subscription flows never create users themselves
// (account provisioning is out of scope, spec.md §1).
func (d *Db) CreateUser(ctx context.Context, user db.User) error {
	if user.ID == "" || user.Username == "" || user.PasswordHash == "" {
		return db.ErrMissingFields
	}

	conn, err := d.takeWriter(ctx)
	if err != nil {
		return err
	}
	defer d.putWriter(conn)

	err = sqlitex.Exec(conn,
		`INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)`,
		nil, user.ID, user.Username, user.PasswordHash)
	if err != nil {
		if sqliteErr, ok := err.(sqlite.Error); ok && sqliteErr.Code == sqlite.SQLITE_CONSTRAINT_UNIQUE {
			return db.ErrConstraintUnique
		}
		return fmt.Errorf("sqlite: create user: %w", err)
	}
	return nil
}
