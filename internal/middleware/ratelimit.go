package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UserRateLimiter throttles requests per authenticated user.
type UserRateLimiter struct {
	visitors sync.Map
	limit    rate.Limit
	burst    int
	log      *zap.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewUserRateLimiter allows perMinute requests per user with the given burst.
func NewUserRateLimiter(perMinute, burst int, logger *zap.Logger) *UserRateLimiter {
	return &UserRateLimiter{
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		log:   logger,
	}
}

func (l *UserRateLimiter) limiterFor(key string) *rate.Limiter {
	v, _ := l.visitors.LoadOrStore(key, &visitor{limiter: rate.NewLimiter(l.limit, l.burst)})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = time.Now()
	vi.mu.Unlock()
	return vi.limiter
}

// Cleanup drops limiters idle for longer than idle. Run it periodically.
func (l *UserRateLimiter) Cleanup(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	l.visitors.Range(func(k, v interface{}) bool {
		vi := v.(*visitor)
		vi.mu.Lock()
		stale := vi.lastSeen.Before(cutoff)
		vi.mu.Unlock()
		if stale {
			l.visitors.Delete(k)
		}
		return true
	})
}

// Handler must run after AuthMiddleware.
func (l *UserRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(UserIDKey)
		if key == "" {
			key = c.ClientIP()
		}
		if !l.limiterFor(key).Allow() {
			l.log.Warn("rate limit exceeded", zap.String("user_id", key), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
