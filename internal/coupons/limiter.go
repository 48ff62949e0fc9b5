package coupons

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 30 * time.Minute

type userLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// Limiter hands out one token bucket per user for the validate endpoint.
type Limiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	users   map[uuid.UUID]*userLimiter
	swept   time.Time
	nowFunc func() time.Time
}

// NewLimiter returns a limiter allowing rps sustained calls with burst.
// A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		users:   make(map[uuid.UUID]*userLimiter),
		nowFunc: time.Now,
	}
}

// Allow reports whether userID may validate another code now.
func (l *Limiter) Allow(userID uuid.UUID) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.sweep(now)
	entry, ok := l.users[userID]
	if !ok {
		entry = &userLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.users[userID] = entry
	}
	entry.last = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops idle buckets at most once per TTL. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < limiterIdleTTL {
		return
	}
	l.swept = now
	for id, entry := range l.users {
		if now.Sub(entry.last) > limiterIdleTTL {
			delete(l.users, id)
		}
	}
}
