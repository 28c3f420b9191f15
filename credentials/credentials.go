// Package credentials implements spec.md §4.A: constant-time password
// verification with a dummy-hash side-channel defense, and Argon2id
// hashing offloaded to a bounded worker pool. Grounded in the teacher's
// crypto/password.go (shape of Verify/ComputeHash) and in
// original_source/src/authentication/password.rs for the exact Argon2id
// parameters and dummy-hash constant.
package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"

	"github.com/caasmo/newsletterd/db"
)

// ErrAuthFailed covers wrong credentials, an absent user, or a malformed
// stored hash — callers at the boundary must not distinguish these cases
// (spec.md §7, §9).
var ErrAuthFailed = errors.New("credentials: authentication failed")

// dummyHash is verified against on every lookup miss, so a missing user
// and a wrong password take the same amount of wall-clock time. Lifted
// verbatim from original_source/src/authentication/password.rs.
const dummyHash = "$argon2id$v=19$m=15000,t=2,p=1$HdFWisuoULgZIDF0OKW7EA$IfkXo59yJ7KLk5BqakAs4ecioYMfY14xAznmBPanMns"

// Store implements verify/compute_hash over a db.CredentialStore.
type Store struct {
	db   db.CredentialStore
	pool *pool
}

// New builds a Store. poolSize bounds concurrent Argon2 workers; 0 means
// GOMAXPROCS, matching the teacher's general sizing convention for
// CPU-bound worker pools.
func New(store db.CredentialStore, poolSize int) *Store {
	if poolSize <= 0 {
		poolSize = runtime.GOMAXPROCS(0)
	}
	return &Store{db: store, pool: newPool(poolSize)}
}

// ComputeHash hashes password into a PHC-encoded Argon2id string, run on
// the worker pool.
func (s *Store) ComputeHash(ctx context.Context, password string) (string, error) {
	return s.pool.submit(ctx, func() (string, error) {
		return computeHash(password)
	})
}

func computeHash(password string) (string, error) {
	salt := make([]byte, defaultParams.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credentials: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, defaultParams.iterations, defaultParams.memory, defaultParams.parallelism, defaultParams.keyLen)
	return encodePHC(defaultParams, salt, hash), nil
}

// Verify looks up username and checks password against the stored hash.
// On a miss it still runs the dummy-hash comparison before returning
// ErrAuthFailed, so lookup failure and password failure are
// indistinguishable by timing (spec.md §9: "the dummy-hash branch must be
// unconditionally executed even when the user is absent").
func (s *Store) Verify(ctx context.Context, username, password string) (string, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("credentials: lookup user: %w", err)
	}

	storedHash := dummyHash
	if user != nil {
		storedHash = user.PasswordHash
	}

	ok, err := s.pool.submit(ctx, func() (string, error) {
		valid, verr := verifyHash(password, storedHash)
		if verr != nil {
			return "", verr
		}
		if valid {
			return "ok", nil
		}
		return "", nil
	})
	if err != nil {
		return "", fmt.Errorf("credentials: verify: %w", err)
	}

	// Only a row actually found in the store can yield an authenticated
	// id — the verification result alone is never sufficient.
	if user == nil || ok != "ok" {
		return "", ErrAuthFailed
	}
	return user.ID, nil
}

func verifyHash(password, phc string) (bool, error) {
	p, salt, hash, err := decodePHC(phc)
	if err != nil {
		// A malformed stored hash is treated as a wrong-credentials case
		// for external callers (spec.md §4.A), not an Unexpected error.
		return false, nil
	}
	computed := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLen)
	return constantTimeEqual(hash, computed), nil
}
