package ratelimit

import (
	"testing"
	"time"
)

func TestBucketBurstThenRefuse(t *testing.T) {
	b := Bucket{Capacity: 4, Window: time.Hour}
	now := time.Unix(1_700_000_000, 0)
	s := b.Full(now)

	for i := 0; i < 4; i++ {
		var ok bool
		s, ok = b.Take(s, now)
		if !ok {
			t.Fatalf("take %d: refused, want granted", i+1)
		}
	}
	if _, ok := b.Take(s, now); ok {
		t.Fatal("fifth take: granted, want refused")
	}
}

func TestBucketPartialRefill(t *testing.T) {
	b := Bucket{Capacity: 4, Window: time.Hour}
	now := time.Unix(1_700_000_000, 0)
	s := b.Full(now)

	for i := 0; i < 4; i++ {
		s, _ = b.Take(s, now)
	}

	// A quarter of the window restores exactly one token.
	later := now.Add(900 * time.Second)
	s = b.Refill(s, later)
	if got := s.Tokens; got < 0.999 || got > 1.001 {
		t.Fatalf("tokens after 900s = %v, want 1", got)
	}
	s, ok := b.Take(s, later)
	if !ok {
		t.Fatal("take after partial refill: refused, want granted")
	}
	if _, ok := b.Take(s, later); ok {
		t.Fatal("second take after partial refill: granted, want refused")
	}
}

func TestBucketRefillCapped(t *testing.T) {
	b := Bucket{Capacity: 4, Window: time.Hour}
	now := time.Unix(1_700_000_000, 0)
	s := State{Tokens: 0, UpdatedAt: now}

	s = b.Refill(s, now.Add(48*time.Hour))
	if s.Tokens != 4 {
		t.Fatalf("tokens after long idle = %v, want capped at 4", s.Tokens)
	}
}

func TestBucketClockSkew(t *testing.T) {
	b := Bucket{Capacity: 4, Window: time.Hour}
	now := time.Unix(1_700_000_000, 0)
	s := State{Tokens: 2, UpdatedAt: now}

	// An earlier clock must not drain tokens.
	s = b.Refill(s, now.Add(-time.Minute))
	if s.Tokens != 2 {
		t.Fatalf("tokens after skew = %v, want 2", s.Tokens)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := State{Tokens: 2.5, UpdatedAt: time.Unix(1_700_000_123, 0)}
	got, err := Decode(Encode(s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tokens != s.Tokens || !got.UpdatedAt.Equal(s.UpdatedAt) {
		t.Fatalf("round trip = %+v, want %+v", got, s)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"", "4.0", "x:123", "4.0:y"} {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%q): no error", raw)
		}
	}
}
