package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/genjobs/internal/common"
	"github.com/suPer8Hu/genjobs/internal/logger"
)

// Limiter is satisfied by redisstore.Store.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RateLimit caps requests per authenticated user. It must run after
// AuthRequired. Limiter errors let the request through.
func RateLimit(l Limiter, scope string, limit int, window time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || limit <= 0 {
			c.Next()
			return
		}
		uid, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}

		key := scope + ":" + strconv.FormatUint(uid, 10)
		allowed, remaining, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request", "scope", scope, "user_id", uid, "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			common.AbortFail(c, http.StatusTooManyRequests, 42901, "too many requests")
			return
		}
		c.Next()
	}
}
