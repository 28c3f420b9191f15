// Package migrations embeds the SQL schema for newsletterd's SQLite
// backend, grounded on caasmo/restinpieces/migrations' embed.FS pattern.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Schema returns the embedded schema filesystem, rooted at "schema" so
// callers see bare file names (e.g. "0001_users.sql").
func Schema() fs.FS {
	sub, err := fs.Sub(schemaFS, "schema")
	if err != nil {
		panic(err) // should never happen; we control the embed path
	}
	return sub
}

// Files lists the embedded schema files in apply order.
var Files = []string{
	"0001_users.sql",
	"0002_subscriptions.sql",
	"0003_newsletter_issues.sql",
	"0004_issue_delivery_queue.sql",
	"0005_idempotency.sql",
	"0006_delivery_dead_letters.sql",
}

// Apply runs every schema file in Files, in order, against exec. exec is
// typically a thin wrapper around sqlitex.ExecScript bound to a single
// connection; Apply itself is driver-agnostic.
func Apply(exec func(script string) error) error {
	root := Schema()
	for _, name := range Files {
		b, err := fs.ReadFile(root, name)
		if err != nil {
			return err
		}
		if err := exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}
