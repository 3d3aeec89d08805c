package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docsquare/auth-gateway/utils"
)

// RateLimiter throttles requests per client IP using a token bucket.
// Intended for credential endpoints (login, password reset) where per-account
// limits alone leave room for spraying across accounts.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	logger   *zap.Logger
	lastSeen func() time.Time
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// NewRateLimiter creates a per-IP rate limiter. Idle buckets are pruned by
// PruneLoop once they go unused for 5 minutes.
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      5 * time.Minute,
		logger:   logger,
		lastSeen: time.Now,
	}
}

// Limit is the middleware entry point
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}

		if !l.allow(ip) {
			l.logger.Warn("client rate limited",
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path))
			_ = utils.WriteTooManyRequests(w, "Too many requests, slow down", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.ts = l.lastSeen()
	return b.lim.Allow()
}

// Prune drops buckets idle longer than the TTL
func (l *RateLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.lastSeen()
	for ip, b := range l.buckets {
		if now.Sub(b.ts) > l.ttl {
			delete(l.buckets, ip)
		}
	}
}

// PruneLoop prunes idle buckets until the done channel closes
func (l *RateLimiter) PruneLoop(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// clientIP resolves the caller's address, honoring X-Forwarded-For
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
