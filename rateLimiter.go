package main

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter counts requests per client IP in Redis (fixed window).
// While Redis is unavailable it falls back to an in-process token bucket per IP.
type RateLimiter struct {
	client func() *redis.Client
	limit  int64
	window time.Duration

	mu        sync.Mutex
	local     map[string]*localEntry
	lastSweep time.Time
	now       func() time.Time
}

// maxLocalLimiters caps the fallback map; past it the map is reset.
const maxLocalLimiters = 10000

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client func() *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		local:  make(map[string]*localEntry),
		now:    time.Now,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	var client *redis.Client
	if rl.client != nil {
		client = rl.client()
	}
	if client == nil {
		if !rl.localLimiter(key).Allow() {
			rl.reject(c)
			return
		}
		c.Next()
		return
	}

	count, err := client.Incr(c.Request.Context(), "ratelimit:"+key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), "ratelimit:"+key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}
	if count > rl.limit {
		rl.reject(c)
		return
	}
	c.Next()
}

func (rl *RateLimiter) localLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	rl.sweep(now)
	e, ok := rl.local[key]
	if !ok {
		every := rl.window / time.Duration(max(rl.limit, 1))
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(every), int(rl.limit))}
		rl.local[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweep drops limiters idle for a full window, at most once per window.
// An idle limiter has refilled its bucket, so dropping it loses no state.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window && len(rl.local) < maxLocalLimiters {
		return
	}
	rl.lastSweep = now
	for key, e := range rl.local {
		if now.Sub(e.lastSeen) >= rl.window {
			delete(rl.local, key)
		}
	}
	if len(rl.local) >= maxLocalLimiters {
		rl.local = make(map[string]*localEntry)
	}
}

func (rl *RateLimiter) reject(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
	})
}
