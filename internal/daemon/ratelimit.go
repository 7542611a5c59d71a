package daemon

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 30 * time.Minute

// clientLimiter keeps one token bucket per client address. Buckets that
// have been idle for limiterIdleTTL are dropped on the next pruning pass.
type clientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	interval  time.Duration
	clients   map[string]*clientBucket
	lastPrune time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter allows requests per window for each client. burst
// defaults to requests, so a fresh client may spend its whole budget at
// once.
func newClientLimiter(requests int, window time.Duration, burst int) *clientLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if burst <= 0 {
		burst = requests
	}
	interval := window / time.Duration(requests)
	return &clientLimiter{
		limit:    rate.Every(interval),
		burst:    burst,
		interval: interval,
		clients:  make(map[string]*clientBucket),
	}
}

func (c *clientLimiter) allow(client string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastPrune) > limiterIdleTTL {
		for key, bucket := range c.clients {
			if now.Sub(bucket.lastSeen) > limiterIdleTTL {
				delete(c.clients, key)
			}
		}
		c.lastPrune = now
	}

	bucket, ok := c.clients[client]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[client] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// retryAfter is the Retry-After value in whole seconds for one token.
func (c *clientLimiter) retryAfter() string {
	seconds := int(c.interval.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
