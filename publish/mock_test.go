package publish

import (
	"context"
	"time"

	"github.com/caasmo/newsletterd/db"
)

// mockIdemDB implements db.IdempotencyStore for testing purposes.
type mockIdemDB struct {
	TryProcessingFunc func(ctx context.Context, userID, key string) (db.PublishTxn, *db.SavedResponse, bool, error)
	SaveResponseFunc  func(ctx context.Context, txn db.PublishTxn, userID, key string, resp db.SavedResponse) error
}

func (m *mockIdemDB) TryProcessing(ctx context.Context, userID, key string) (db.PublishTxn, *db.SavedResponse, bool, error) {
	return m.TryProcessingFunc(ctx, userID, key)
}

func (m *mockIdemDB) SaveResponse(ctx context.Context, txn db.PublishTxn, userID, key string, resp db.SavedResponse) error {
	if m.SaveResponseFunc != nil {
		return m.SaveResponseFunc(ctx, txn, userID, key, resp)
	}
	return nil
}

func (m *mockIdemDB) GetSavedResponse(ctx context.Context, userID, key string) (*db.SavedResponse, error) {
	return nil, nil
}

func (m *mockIdemDB) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// mockTxn implements db.PublishTxn for testing purposes.
type mockTxn struct {
	InsertIssueAndFanOutFunc func(ctx context.Context, issue db.NewsletterIssue, nRetries int16, executeAfterInSecs *int32) (string, error)
	RollbackFunc             func() error
	RolledBack               bool
}

func (m *mockTxn) InsertIssueAndFanOut(ctx context.Context, issue db.NewsletterIssue, nRetries int16, executeAfterInSecs *int32) (string, error) {
	return m.InsertIssueAndFanOutFunc(ctx, issue, nRetries, executeAfterInSecs)
}

func (m *mockTxn) Rollback() error {
	m.RolledBack = true
	if m.RollbackFunc != nil {
		return m.RollbackFunc()
	}
	return nil
}
