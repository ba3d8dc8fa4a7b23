// Package natskv implements shared coordination primitives on top of
// NATS JetStream KV: the global dispatch rate limiter and a remote cache.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/ReviewLoop/internal/domain/ratelimit"
)

const (
	limiterBucketName = "reviewloop-ratelimit"
	limiterKey        = "dispatch"
	casAttempts       = 8
)

// Limiter implements the dispatch limiter port with a token bucket whose
// state lives in a JetStream KV bucket. Concurrent engine instances
// coordinate through compare-and-swap on the entry revision, so each
// token is granted at most once across the fleet.
type Limiter struct {
	kv     jetstream.KeyValue
	bucket ratelimit.Bucket
	now    func() time.Time
}

// NewLimiter creates (or binds to) the limiter KV bucket. The bucket TTL
// is twice the refill window so stale state ages out on its own.
func NewLimiter(ctx context.Context, js jetstream.JetStream, capacity float64, window time.Duration) (*Limiter, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: limiterBucketName,
		TTL:    2 * window,
	})
	if err != nil {
		return nil, fmt.Errorf("create limiter bucket: %w", err)
	}
	return &Limiter{
		kv:     kv,
		bucket: ratelimit.Bucket{Capacity: capacity, Window: window},
		now:    time.Now,
	}, nil
}

// Allow consumes one token from the shared bucket. Revision conflicts
// mean another instance raced us; the read-modify-write is retried a
// bounded number of times.
func (l *Limiter) Allow(ctx context.Context) (bool, error) {
	for range casAttempts {
		now := l.now()

		entry, err := l.kv.Get(ctx, limiterKey)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			// First dispatch ever (or the state expired). Start full
			// and take one token.
			state, _ := l.bucket.Take(l.bucket.Full(now), now)
			_, err = l.kv.Create(ctx, limiterKey, ratelimit.Encode(state))
			if errors.Is(err, jetstream.ErrKeyExists) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("limiter create: %w", err)
			}
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("limiter read: %w", err)
		}

		state, err := ratelimit.Decode(entry.Value())
		if err != nil {
			return false, fmt.Errorf("limiter state: %w", err)
		}

		next, ok := l.bucket.Take(state, now)
		if !ok {
			return false, nil
		}

		_, err = l.kv.Update(ctx, limiterKey, ratelimit.Encode(next), entry.Revision())
		if err == nil {
			return true, nil
		}
		// Revision mismatch: retry against the fresh state.
	}
	return false, fmt.Errorf("limiter: contention exceeded %d attempts", casAttempts)
}
