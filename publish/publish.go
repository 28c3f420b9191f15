// Package publish implements spec.md §4.C: the Publish Coordinator.
// Accepts a publish request, consults the idempotency store, and — inside
// the single transaction the claim protocol hands back — inserts the
// newsletter issue and fans delivery tasks out to every confirmed
// subscriber.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/caasmo/newsletterd/db"
	"github.com/caasmo/newsletterd/idempotency"
)

// DefaultNRetries is the fan-out default when Input.NRetries is nil.
const DefaultNRetries = 20

// ErrValidation covers a malformed idempotency key; surfaced to the HTTP
// layer as 400 (spec.md §7).
var ErrValidation = idempotency.ErrValidation

// Input is the Publish Coordinator's request shape (spec.md §4.C).
type Input struct {
	UserID              string
	Title               string
	TextContent         string
	HTMLContent         string
	IdempotencyKey      string
	NRetries            *int16 // 0..=255, default 20
	ExecuteAfterInSecs  *int32 // 0..=2^31-1, nil = fire immediately
}

// Response is the canonical success response: a 303 redirect to
// /admin/newsletters, cached byte-for-byte by the idempotency store.
type Response struct {
	StatusCode int
	Headers    []db.ResponseHeader
	Body       []byte
}

func (r Response) toSaved() db.SavedResponse {
	return db.SavedResponse{StatusCode: r.StatusCode, Headers: r.Headers, Body: r.Body}
}

func fromSaved(s db.SavedResponse) Response {
	return Response{StatusCode: s.StatusCode, Headers: s.Headers, Body: s.Body}
}

func canonicalResponse() Response {
	return Response{
		StatusCode: 303,
		Headers: []db.ResponseHeader{
			{Name: "Location", Value: []byte("/admin/newsletters")},
		},
		Body: nil,
	}
}

// Coordinator implements spec.md §4.C's Publish operation.
type Coordinator struct {
	idem *idempotency.Store
}

func New(idem *idempotency.Store) *Coordinator {
	return &Coordinator{idem: idem}
}

// Publish runs the four-step contract of spec.md §4.C.
func (c *Coordinator) Publish(ctx context.Context, in Input) (Response, error) {
	// Step 1: validate the idempotency key.
	if err := idempotency.ValidateKey(in.IdempotencyKey); err != nil {
		return Response{}, err
	}

	// Step 2: attempt the claim.
	txn, saved, ok, err := c.idem.TryProcessing(ctx, in.UserID, in.IdempotencyKey)
	if err != nil {
		return Response{}, fmt.Errorf("publish: try processing: %w", err)
	}
	if !ok {
		if saved == nil {
			return Response{}, errors.New("publish: try processing returned neither a claim nor a saved response")
		}
		return fromSaved(*saved), nil
	}

	// Step 3: insert the issue and fan out, inside the transaction held
	// by txn.
	nRetries := int16(DefaultNRetries)
	if in.NRetries != nil {
		nRetries = *in.NRetries
	}

	issue := db.NewsletterIssue{
		ID:          uuid.NewString(),
		Title:       in.Title,
		TextContent: in.TextContent,
		HTMLContent: in.HTMLContent,
		PublishedAt: nowUTC(),
	}

	if _, err := txn.InsertIssueAndFanOut(ctx, issue, nRetries, in.ExecuteAfterInSecs); err != nil {
		_ = txn.Rollback()
		return Response{}, fmt.Errorf("publish: insert issue and fan out: %w", err)
	}

	// Step 4: build the canonical response and commit it atomically with
	// the work via SaveResponse.
	resp := canonicalResponse()
	if err := c.idem.SaveResponse(ctx, txn, in.UserID, in.IdempotencyKey, resp.toSaved()); err != nil {
		return Response{}, fmt.Errorf("publish: save response: %w", err)
	}
	return resp, nil
}
