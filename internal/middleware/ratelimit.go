package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
)

type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RateLimit caps requests per user and route within a fixed window. Anonymous
// callers are keyed by client IP. Limiter failures let the request through.
func RateLimit(limiter rateLimiter, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		subject := c.ClientIP()
		if claims := CurrentUser(c); claims != nil {
			subject = claims.UserID
		}
		key := c.FullPath() + ":" + subject

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
