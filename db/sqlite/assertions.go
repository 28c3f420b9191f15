package sqlite

import "github.com/caasmo/newsletterd/db"

var (
	_ db.CredentialStore  = (*Db)(nil)
	_ db.IdempotencyStore = (*Db)(nil)
	_ db.QueueStore       = (*Db)(nil)
	_ db.PublishTxn       = (*publishTxn)(nil)
	_ db.QueueTxn         = (*queueTxn)(nil)
)
