package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// KeyFunc picks the identity a request is limited under.
type KeyFunc func(c *gin.Context) string

// TokenBucket is an in-memory per-key rate limiter. Each API replica keeps
// its own buckets.
type TokenBucket struct {
	capacity int
	rate     int
	clock    clockwork.Clock
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates limiter with capacity tokens and rate per minute.
func NewTokenBucket(capacity, perMinute int, clock clockwork.Clock) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		clock:    clock,
		state:    make(map[string]*bucket),
	}
}

// ClientIP keys requests by remote address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// GinMiddleware returns gin handler enforcing per-key limits.
func (l *TokenBucket) GinMiddleware(key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIP
	}
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			k = "unknown"
		}
		if !l.Allow(k) {
			c.Header("Retry-After", strconv.Itoa(l.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket.
func (l *TokenBucket) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.clock.Now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (l *TokenBucket) retryAfter() int {
	if l.rate <= 0 {
		return 60
	}
	secs := 60 / l.rate
	if secs < 1 {
		secs = 1
	}
	return secs
}
