package sqlite

import (
	"context"
	"fmt"

	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/newsletterd/migrations"
)

// Migrate applies the embedded schema to the database, in order. Safe to
// call on every startup: every statement in the schema files uses
// IF NOT EXISTS.
func (d *Db) Migrate() error {
	conn, err := d.takeWriter(context.Background())
	if err != nil {
		return err
	}
	defer d.putWriter(conn)

	err = migrations.Apply(func(script string) error {
		return sqlitex.ExecScript(conn, script)
	})
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}
