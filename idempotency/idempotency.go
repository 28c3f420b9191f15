// Package idempotency implements spec.md §4.B: the claim protocol that
// collapses duplicate and concurrent publish requests into one effect and
// one cached response. Grounded in db.IdempotencyStore's SQLite backend
// for the authoritative claim, with an optional ristretto read-through
// cache (github.com/dgraph-io/ristretto/v2) for diagnostic lookups only.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/caasmo/newsletterd/db"
)

// MaxKeyLen is the limit spec.md §4.C imposes on idempotency_key.
const MaxKeyLen = 128

// ErrValidation is returned for a malformed idempotency key.
var ErrValidation = errors.New("idempotency: invalid key")

// Store wraps a db.IdempotencyStore. cache, if non-nil, accelerates
// GetSavedResponse diagnostic lookups; it is never consulted by
// TryProcessing or SaveResponse, which must always observe the
// authoritative row lock (SPEC_FULL.md §3 4.B).
type Store struct {
	db    db.IdempotencyStore
	cache *ristretto.Cache[string, db.SavedResponse]
}

// New builds a Store. Pass a nil cache to disable the read-through cache
// entirely.
func New(backend db.IdempotencyStore, cache *ristretto.Cache[string, db.SavedResponse]) *Store {
	return &Store{db: backend, cache: cache}
}

// NewCache builds a ristretto cache sized for idempotency diagnostic
// lookups, following the defaults ristretto's own docs recommend for a
// cache of this scale.
func NewCache() (*ristretto.Cache[string, db.SavedResponse], error) {
	return ristretto.NewCache(&ristretto.Config[string, db.SavedResponse]{
		NumCounters: 1e6,
		MaxCost:     1 << 26, // 64 MiB
		BufferItems: 64,
	})
}

func cacheKey(userID, key string) string {
	return userID + "\x00" + key
}

// ValidateKey implements spec.md §4.C step 1.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: idempotency key must not be empty", ErrValidation)
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("%w: idempotency key exceeds %d bytes", ErrValidation, MaxKeyLen)
	}
	return nil
}

// TryProcessing attempts to claim (userID, key). See db.IdempotencyStore
// for the exact claim protocol.
func (s *Store) TryProcessing(ctx context.Context, userID, key string) (db.PublishTxn, *db.SavedResponse, bool, error) {
	return s.db.TryProcessing(ctx, userID, key)
}

// SaveResponse persists resp and commits txn, populating the cache so a
// subsequent diagnostic GetSavedResponse is fast.
func (s *Store) SaveResponse(ctx context.Context, txn db.PublishTxn, userID, key string, resp db.SavedResponse) error {
	if err := s.db.SaveResponse(ctx, txn, userID, key, resp); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Set(cacheKey(userID, key), resp, 1)
	}
	return nil
}

// GetSavedResponse is a read-only diagnostic lookup, consulting the cache
// first when present.
func (s *Store) GetSavedResponse(ctx context.Context, userID, key string) (*db.SavedResponse, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey(userID, key)); ok {
			return &v, nil
		}
	}
	resp, err := s.db.GetSavedResponse(ctx, userID, key)
	if err != nil || resp == nil {
		return resp, err
	}
	if s.cache != nil {
		s.cache.Set(cacheKey(userID, key), *resp, 1)
	}
	return resp, nil
}

// DeleteStale removes idempotency rows created before cutoff. Used by
// package reaper.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	return s.db.DeleteStale(ctx, cutoff)
}
