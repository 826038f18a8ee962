package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/pkg/response"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds per-caller token bucket settings
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL drops limiters of callers not seen for this long
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastGC   time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter. Zero fields take defaults of 20 rps, burst 40.
func NewRateLimiter(cfg *RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    20,
		burst:    40,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
	if cfg != nil {
		if cfg.RequestsPerSecond > 0 {
			rl.limit = rate.Limit(cfg.RequestsPerSecond)
		}
		if cfg.Burst > 0 {
			rl.burst = cfg.Burst
		}
		if cfg.IdleTTL > 0 {
			rl.idleTTL = cfg.IdleTTL
		}
	}
	rl.lastGC = rl.now()
	return rl
}

// Allow consumes one token from key's bucket
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastGC) > rl.idleTTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastGC = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Len returns the number of tracked callers
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// RateLimit limits requests per caller id, falling back to client IP
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetUserID(c)
		if !ok {
			key = "ip:" + c.ClientIP()
		}
		if !rl.Allow(key) {
			c.Header("Retry-After", "1")
			response.TooManyRequests(c, "too many requests")
			return
		}
		c.Next()
	}
}
