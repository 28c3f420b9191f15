package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	DeleteStaleFunc func(ctx context.Context, cutoff time.Time) (int, error)
}

func (m *mockStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	return m.DeleteStaleFunc(ctx, cutoff)
}

func TestTick_UsesCutoffBeforeTTLWindow(t *testing.T) {
	var gotCutoff time.Time
	store := &mockStore{
		DeleteStaleFunc: func(ctx context.Context, cutoff time.Time) (int, error) {
			gotCutoff = cutoff
			return 3, nil
		},
	}
	r := New(store, time.Minute, time.Hour, nil)

	before := time.Now().UTC().Add(-time.Hour)
	r.tick(context.Background())
	after := time.Now().UTC().Add(-time.Hour)

	require.False(t, gotCutoff.IsZero())
	assert.True(t, !gotCutoff.Before(before) && !gotCutoff.After(after))
}
