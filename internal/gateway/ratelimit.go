package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter applies a per-source-IP token bucket to webhook traffic.
// Idle entries are evicted lazily to keep the map bounded.
type ipLimiter struct {
	perMinute int

	mu      sync.Mutex
	buckets map[string]*ipBucket
	sweep   time.Time
}

type ipBucket struct {
	limiter *rate.Limiter
	seenAt  time.Time
}

const bucketIdleTTL = 10 * time.Minute

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*ipBucket),
		sweep:     time.Now(),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.sweep) > bucketIdleTTL {
		for key, b := range l.buckets {
			if now.Sub(b.seenAt) > bucketIdleTTL {
				delete(l.buckets, key)
			}
		}
		l.sweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{
			limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute),
		}
		l.buckets[ip] = b
	}
	b.seenAt = now
	return b.limiter.Allow()
}
