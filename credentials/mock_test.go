package credentials

import (
	"context"

	"github.com/caasmo/newsletterd/db"
)

// mockStore implements db.CredentialStore for testing purposes. Use
// function fields to allow overriding behavior in specific tests.
type mockStore struct {
	GetUserByUsernameFunc func(ctx context.Context, username string) (*db.User, error)
}

func (m *mockStore) GetUserByUsername(ctx context.Context, username string) (*db.User, error) {
	if m.GetUserByUsernameFunc != nil {
		return m.GetUserByUsernameFunc(ctx, username)
	}
	return nil, db.ErrNotFound
}
