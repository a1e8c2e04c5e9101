package endpoints

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reframe/internal/ratelimit"
)

// RequestIDMiddleware tags every request with an x-request-id, keeping a
// caller-supplied one when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("x-request-id", requestID)
		c.Next()
	}
}

// RateLimitMiddleware rejects clients over their sliding window budget with
// a 429 and a Retry-After hint.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()
		if limiter.Allow(client) {
			c.Next()
			return
		}
		retryAfter := limiter.RetryAfter(client)
		seconds := int(retryAfter / time.Second)
		if retryAfter > 0 && seconds == 0 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		abortError(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", gin.H{
			"retry_after_seconds": seconds,
		})
	}
}
