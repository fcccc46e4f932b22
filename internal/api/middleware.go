package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/JAMBAMSF/jagent/internal/audit"
)

// limiterIdle is how long an IP's bucket survives without requests.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	auditor SecurityAuditor
}

// NewRateLimiter allows perSecond requests per IP with the given burst.
// auditor may be nil.
func NewRateLimiter(perSecond float64, burst int, auditor SecurityAuditor) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		auditor: auditor,
	}
}

// allow checks if a request from the given IP is allowed
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// cleanup drops buckets idle longer than maxIdle and returns how many went.
func (rl *RateLimiter) cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for ip, e := range rl.entries {
		if e.lastSeen.Before(cutoff) {
			delete(rl.entries, ip)
			removed++
		}
	}
	return removed
}

// Janitor periodically forgets idle clients until ctx is done.
func (rl *RateLimiter) Janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.cleanup(limiterIdle); n > 0 {
				log.Debug().Int("removed", n).Msg("Rate limiter entries expired")
			}
		}
	}
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if rl.allow(ip) {
			c.Next()
			return
		}

		log.Warn().
			Str("ip", ip).
			Str("path", c.Request.URL.Path).
			Msg("Rate limit exceeded")

		if rl.auditor != nil {
			if err := rl.auditor.LogSecurityEvent(c.Request.Context(), audit.EventTypeRateLimitExceeded,
				ip, c.Request.URL.Path, "Request rejected", map[string]interface{}{
					"method": c.Request.Method,
				}); err != nil {
				log.Error().Err(err).Msg("Failed to log rate limit event")
			}
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate_limit_exceeded",
			"message":     "Too many requests. Please try again later.",
			"retry_after": 1,
		})
	}
}

// auditRejected records requests its handlers answered with 401.
func (s *Server) auditRejected() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() != http.StatusUnauthorized || s.auditor == nil {
			return
		}
		if err := s.auditor.LogSecurityEvent(c.Request.Context(), audit.EventTypeUnauthorizedAccess,
			c.ClientIP(), c.Request.URL.Path, "Request rejected", nil); err != nil {
			log.Error().Err(err).Msg("Failed to log unauthorized request")
		}
	}
}
