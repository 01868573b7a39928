package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig defines the per-IP fixed-window limit.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration

	// Done stops the background bucket GC when closed. A nil channel keeps
	// it running for the process lifetime.
	Done <-chan struct{}
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// rateLimiter provides per-IP fixed-window rate limiting. Expired buckets
// are reset in place on access and garbage collected periodically.
type rateLimiter struct {
	cfg     RateLimitConfig
	buckets sync.Map
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	rl := &rateLimiter{cfg: cfg}
	go rl.gcLoop()
	return rl
}

func (rl *rateLimiter) gcLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.cfg.Done:
			return
		case <-ticker.C:
			rl.gc(time.Now())
		}
	}
}

func (rl *rateLimiter) gc(now time.Time) {
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

func (rl *rateLimiter) allow(ip string) bool {
	now := time.Now()
	val, _ := rl.buckets.LoadOrStore(ip, &bucket{resetAt: now.Add(rl.cfg.Window)})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(rl.cfg.Window)
	}
	b.count++
	return b.count <= rl.cfg.MaxRequests
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.cfg.Window.Seconds())))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// clientIP returns the request's remote host. middleware.RealIP has already
// folded X-Forwarded-For / X-Real-IP into RemoteAddr upstream.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
