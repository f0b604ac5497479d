package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"bus-signage/internal/clock"
)

const limiterIdleTTL = 10 * time.Minute

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter applies a token bucket per client IP. The burst is one second
// of budget.
type RateLimiter struct {
	mu       sync.RWMutex
	clients  map[string]*rateLimitClient
	limit    rate.Limit
	burst    int
	clock    clock.Clock
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter allows rps requests per second per client. rps <= 0
// disables limiting.
func NewRateLimiter(rps int, clk clock.Clock) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*rateLimitClient),
		limit:   rate.Inf,
		burst:   rps,
		clock:   clk,
		stop:    make(chan struct{}),
	}
	if rps > 0 {
		rl.limit = rate.Limit(rps)
		go rl.cleanupLoop()
	}
	return rl
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl.limit == rate.Inf {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(clientKey(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
			w.Header().Set("X-RateLimit-Remaining", "0")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	rl.mu.RLock()
	if c, ok := rl.clients[key]; ok {
		c.lastSeen.Store(now)
		rl.mu.RUnlock()
		return c.limiter
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if c, ok := rl.clients[key]; ok {
		c.lastSeen.Store(now)
		return c.limiter
	}
	c := &rateLimitClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	c.lastSeen.Store(now)
	rl.clients[key] = c
	return c.limiter
}

// cleanupOnce evicts clients idle for longer than limiterIdleTTL.
func (rl *RateLimiter) cleanupOnce() {
	cutoff := rl.clock.Now().Add(-limiterIdleTTL).UnixNano()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if c.lastSeen.Load() < cutoff {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanupOnce()
		}
	}
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
