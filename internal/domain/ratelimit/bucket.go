// Package ratelimit implements the pure token-bucket math for the global
// dispatch limiter. The shared state lives in an external KV store; this
// package only computes refills and encodes/decodes the stored value so
// the arithmetic is testable without any backend.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State is one token bucket snapshot: remaining tokens and the time of
// the last update.
type State struct {
	Tokens    float64
	UpdatedAt time.Time
}

// Bucket holds the static parameters of a token bucket.
type Bucket struct {
	// Capacity is the maximum number of tokens (burst size).
	Capacity float64
	// Window is the time over which Capacity tokens refill. The
	// continuous refill rate is Capacity/Window tokens per second.
	Window time.Duration
}

// refillRate returns tokens per second.
func (b Bucket) refillRate() float64 {
	return b.Capacity / b.Window.Seconds()
}

// Full returns a full bucket as of now.
func (b Bucket) Full(now time.Time) State {
	return State{Tokens: b.Capacity, UpdatedAt: now}
}

// Refill advances the state to now, adding elapsed*rate tokens capped at
// capacity.
func (b Bucket) Refill(s State, now time.Time) State {
	elapsed := now.Sub(s.UpdatedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := s.Tokens + elapsed*b.refillRate()
	if tokens > b.Capacity {
		tokens = b.Capacity
	}
	return State{Tokens: tokens, UpdatedAt: now}
}

// Take refills the state to now and attempts to consume one token.
// It returns the new state and whether the token was granted.
func (b Bucket) Take(s State, now time.Time) (State, bool) {
	s = b.Refill(s, now)
	if s.Tokens < 1 {
		return s, false
	}
	s.Tokens--
	return s, true
}

// Encode serializes a state as "tokens:unix_seconds" for the KV store.
func Encode(s State) []byte {
	return fmt.Appendf(nil, "%.6f:%d", s.Tokens, s.UpdatedAt.Unix())
}

// Decode parses a stored "tokens:unix_seconds" value.
func Decode(data []byte) (State, error) {
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) != 2 {
		return State{}, fmt.Errorf("malformed bucket state %q", data)
	}
	tokens, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return State{}, fmt.Errorf("parse tokens %q: %w", parts[0], err)
	}
	sec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return State{}, fmt.Errorf("parse timestamp %q: %w", parts[1], err)
	}
	return State{Tokens: tokens, UpdatedAt: time.Unix(sec, 0)}, nil
}
