package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Strob0t/ReviewLoop/internal/domain/ratelimit"
)

// maxTrackedIPs caps the bucket map so a scan cannot exhaust memory.
const maxTrackedIPs = 100000

// RateLimiter applies a per-client-IP token bucket to inbound HTTP.
// Each IP gets an independent bucket; state is kept in memory, so limits
// apply per process, not across replicas.
type RateLimiter struct {
	mu     sync.Mutex
	bucket ratelimit.Bucket
	states map[string]*ipState
	now    func() time.Time
	stopGC chan struct{}
	gcOnce sync.Once
}

type ipState struct {
	state    ratelimit.State
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing a sustained rate of rps
// requests per second with bursts up to burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		bucket: ratelimit.Bucket{
			Capacity: float64(burst),
			Window:   time.Duration(float64(burst) / rps * float64(time.Second)),
		},
		states: make(map[string]*ipState),
		now:    time.Now,
		stopGC: make(chan struct{}),
	}
}

// Handler wraps next with the rate limit check.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter, ok := rl.allow(clientIP(r))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		if !ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(retryAfter)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) (remaining int, retryAfter float64, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rate := rl.bucket.Capacity / rl.bucket.Window.Seconds()

	st, exists := rl.states[ip]
	if !exists {
		if len(rl.states) >= maxTrackedIPs {
			return 0, 1 / rate, false
		}
		st = &ipState{state: rl.bucket.Full(now)}
		rl.states[ip] = st
	}
	st.lastSeen = now

	next, granted := rl.bucket.Take(st.state, now)
	st.state = next
	if !granted {
		return 0, (1 - next.Tokens) / rate, false
	}
	return int(next.Tokens), 0, true
}

// StartCleanup evicts buckets idle longer than maxIdle, checking every
// interval. Stop terminates the goroutine.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-rl.stopGC:
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
}

// Stop terminates the cleanup goroutine started by StartCleanup.
func (rl *RateLimiter) Stop() {
	rl.gcOnce.Do(func() { close(rl.stopGC) })
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	for ip, st := range rl.states {
		if st.lastSeen.Before(cutoff) {
			delete(rl.states, ip)
		}
	}
}

// Len reports the number of tracked IPs.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.states)
}

// clientIP uses RemoteAddr only. Forwarding headers are spoofable and
// would let a client pick its own bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
