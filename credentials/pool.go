package credentials

import "context"

// pool bounds concurrent Argon2 work to a fixed number of goroutines, the
// Go analogue of Rust's spawn_blocking_with_tracing: CPU-bound hashing
// never runs unbounded alongside whatever else the process is doing
// (spec.md §4.A, SPEC_FULL.md §3 4.A).
type pool struct {
	sem chan struct{}
}

func newPool(size int) *pool {
	if size < 1 {
		size = 1
	}
	return &pool{sem: make(chan struct{}, size)}
}

type result struct {
	hash string
	err  error
}

func (p *pool) submit(ctx context.Context, fn func() (string, error)) (string, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	done := make(chan result, 1)
	go func() {
		// The slot is held until fn finishes, even if the caller stops
		// waiting on ctx cancellation.
		defer func() { <-p.sem }()
		h, err := fn()
		done <- result{hash: h, err: err}
	}()

	select {
	case r := <-done:
		return r.hash, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
