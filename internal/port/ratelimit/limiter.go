// Package ratelimit defines the shared dispatch limiter port.
package ratelimit

import "context"

// Limiter gates outbound review dispatches across all engine instances.
type Limiter interface {
	// Allow consumes one token. It returns false when the budget for
	// the current window is exhausted. Backend errors are returned so
	// the caller can decide its failure policy.
	Allow(ctx context.Context) (bool, error)
}
