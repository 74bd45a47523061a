package channel

import (
	"context"
	"errors"
	"time"

	"cargohold/internal/authority"
)

// RetryPolicy bounds how hard the gate and the supervisor try against a
// misbehaving authority store before failing closed.
type RetryPolicy struct {
	LookupTimeout time.Duration // per attempt
	Attempts      int
	Backoff       time.Duration // doubled after each failed attempt
}

// lookupWithRetry performs an authority lookup with bounded retries.
// NotFound is a definitive answer and is returned immediately; only
// transient store failures are retried. After the attempt budget is spent
// the last transient error is returned; callers treat that as SystemError
// and fail closed.
func lookupWithRetry(ctx context.Context, store AuthorityLookup, ref string, policy RetryPolicy) (*authority.Record, error) {
	backoff := policy.Backoff
	var lastErr error

	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lookupCtx, cancel := context.WithTimeout(ctx, policy.LookupTimeout)
		rec, err := store.Lookup(lookupCtx, ref)
		cancel()

		if err == nil {
			return rec, nil
		}
		if errors.Is(err, authority.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}
