package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caasmo/newsletterd/db"
	"github.com/caasmo/newsletterd/idempotency"
)

func TestPublish_EmptyKeyRejected(t *testing.T) {
	c := New(idempotency.New(&mockIdemDB{}, nil))

	_, err := c.Publish(context.Background(), Input{UserID: "u1", IdempotencyKey: ""})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPublish_FreshClaimInsertsAndSaves(t *testing.T) {
	var fannedOut bool
	var savedResp db.SavedResponse

	txn := &mockTxn{
		InsertIssueAndFanOutFunc: func(ctx context.Context, issue db.NewsletterIssue, nRetries int16, executeAfterInSecs *int32) (string, error) {
			fannedOut = true
			assert.Equal(t, int16(DefaultNRetries), nRetries)
			assert.Equal(t, "Hi", issue.Title)
			return issue.ID, nil
		},
	}

	idemDB := &mockIdemDB{
		TryProcessingFunc: func(ctx context.Context, userID, key string) (db.PublishTxn, *db.SavedResponse, bool, error) {
			return txn, nil, true, nil
		},
		SaveResponseFunc: func(ctx context.Context, t db.PublishTxn, userID, key string, resp db.SavedResponse) error {
			savedResp = resp
			return nil
		},
	}

	c := New(idempotency.New(idemDB, nil))

	resp, err := c.Publish(context.Background(), Input{
		UserID:         "u1",
		Title:          "Hi",
		TextContent:    "t",
		HTMLContent:    "<p>h</p>",
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.True(t, fannedOut)
	assert.Equal(t, 303, resp.StatusCode)
	assert.Equal(t, 303, savedResp.StatusCode)
	assert.False(t, txn.RolledBack)
}

func TestPublish_DuplicateReturnsSavedResponse(t *testing.T) {
	saved := &db.SavedResponse{StatusCode: 303, Body: []byte("cached")}
	idemDB := &mockIdemDB{
		TryProcessingFunc: func(ctx context.Context, userID, key string) (db.PublishTxn, *db.SavedResponse, bool, error) {
			return nil, saved, false, nil
		},
	}
	c := New(idempotency.New(idemDB, nil))

	resp, err := c.Publish(context.Background(), Input{UserID: "u1", IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "cached", string(resp.Body))
}

func TestPublish_FanOutErrorRollsBack(t *testing.T) {
	txn := &mockTxn{
		InsertIssueAndFanOutFunc: func(ctx context.Context, issue db.NewsletterIssue, nRetries int16, executeAfterInSecs *int32) (string, error) {
			return "", assert.AnError
		},
	}
	idemDB := &mockIdemDB{
		TryProcessingFunc: func(ctx context.Context, userID, key string) (db.PublishTxn, *db.SavedResponse, bool, error) {
			return txn, nil, true, nil
		},
	}
	c := New(idempotency.New(idemDB, nil))

	_, err := c.Publish(context.Background(), Input{UserID: "u1", IdempotencyKey: "k1"})
	require.Error(t, err)
	assert.True(t, txn.RolledBack)
}
