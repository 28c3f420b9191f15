// Package reaper implements spec.md §4.E: a ticking loop that deletes
// idempotency rows older than a configured TTL. Grounded in the teacher's
// queue/scheduler.Scheduler ticker/Start/Stop lifecycle shape.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/caasmo/newsletterd/db"
)

// DefaultInterval matches spec.md §4.E's "every 10 minutes".
const DefaultInterval = 10 * time.Minute

// DefaultTTL bounds how long an idempotency row survives before it is
// eligible for reaping. Must stay comfortably above any plausible publish
// transaction lifetime (spec.md §4.E, §9).
const DefaultTTL = 24 * time.Hour

type store interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Reaper runs the idempotency-table cleanup loop.
type Reaper struct {
	store    store
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger
}

func New(s store, interval, ttl time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{store: s, interval: interval, ttl: ttl, logger: logger}
}

// Run blocks, deleting stale rows every interval, until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.ttl)
	n, err := r.store.DeleteStale(ctx, cutoff)
	if err != nil {
		r.logger.Error("reaper: delete stale idempotency rows", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("reaper: deleted stale idempotency rows", "count", n)
	}
}
