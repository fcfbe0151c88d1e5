package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vidtube/backend/internal/config"
)

// RateLimiter reports whether the caller identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter hands every key its own token bucket. Buckets idle for longer
// than idleTTL are dropped, at most once per sweepEvery.
type keyedLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	every      rate.Limit
	burst      int
	idleTTL    time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

// NewRateLimiter builds the limiter guarding the credential endpoints from cfg.
func NewRateLimiter(cfg config.RateLimitConfig) RateLimiter {
	return newKeyedLimiter(cfg, time.Now)
}

func newKeyedLimiter(cfg config.RateLimitConfig, now func() time.Time) *keyedLimiter {
	requests, window, burst := cfg.Requests, cfg.Window, cfg.Burst
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if burst <= 0 {
		burst = 1
	}

	idle := 2 * window
	return &keyedLimiter{
		buckets:    make(map[string]*bucket),
		every:      rate.Every(window / time.Duration(requests)),
		burst:      burst,
		idleTTL:    idle,
		sweepEvery: idle / 2,
		now:        now,
	}
}

func (l *keyedLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if now.Sub(l.lastSweep) >= l.sweepEvery {
		l.sweepLocked(now)
	}
	l.mu.Unlock()

	return b.tokens.AllowN(now, 1)
}

func (l *keyedLimiter) sweepLocked(now time.Time) {
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

func (l *keyedLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
