package middleware

import (
	"net/http"
	"sync"
	"time"

	"taskboard/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps a token bucket per client IP. The auth endpoints get a
// tighter bucket than the rest of the API since they are the ones worth
// brute-forcing. Idle entries are pruned on a background ticker.
type RateLimiter struct {
	cfg config.RateLimitConfig

	mu       sync.Mutex
	general  map[string]*clientLimiter
	auth     map[string]*clientLimiter
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:     cfg,
		general: make(map[string]*clientLimiter),
		auth:    make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// General limits the whole API surface.
func (rl *RateLimiter) General() gin.HandlerFunc {
	return rl.middleware(rl.general, rl.cfg.RequestsPerMin, rl.cfg.BurstSize)
}

// Auth limits login and registration attempts.
func (rl *RateLimiter) Auth() gin.HandlerFunc {
	return rl.middleware(rl.auth, rl.cfg.AuthPerMin, rl.cfg.AuthBurst)
}

func (rl *RateLimiter) middleware(limiters map[string]*clientLimiter, perMin, burst int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.cfg.Enabled {
			c.Next()
			return
		}

		if !rl.take(limiters, c.ClientIP(), perMin, burst) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) take(limiters map[string]*clientLimiter, key string, perMin, burst int) bool {
	rl.mu.Lock()
	entry, found := limiters[key]
	if !found {
		entry = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst),
		}
		limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-3 * rl.cfg.CleanupInterval)
			rl.mu.Lock()
			for _, limiters := range []map[string]*clientLimiter{rl.general, rl.auth} {
				for key, entry := range limiters {
					if entry.lastAccess.Before(cutoff) {
						delete(limiters, key)
					}
				}
			}
			rl.mu.Unlock()
		}
	}
}
