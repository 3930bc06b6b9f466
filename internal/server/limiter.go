package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter hands out one token bucket per client key. Idle buckets are
// dropped once they have refilled, so the map only holds recent clients.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perHour, burst int) *clientLimiter {
	if perHour <= 0 {
		perHour = 10
	}
	if burst <= 0 {
		burst = perHour
	}
	return &clientLimiter{
		limit:   rate.Every(time.Hour / time.Duration(perHour)),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token for key, reporting false when its bucket is empty.
func (l *clientLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	l.sweep(now)
	return allowed
}

func (l *clientLimiter) sweep(now time.Time) {
	idle := time.Duration(float64(l.burst) / float64(l.limit) * float64(time.Second))
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, key)
		}
	}
}
