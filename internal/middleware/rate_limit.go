package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nexabot/guardrail/internal/monitoring"
	"github.com/nexabot/guardrail/internal/ratelimit"
	"github.com/nexabot/guardrail/pkg/constants"
	"github.com/nexabot/guardrail/pkg/logger"
)

// RateLimit enforces a rate-limit profile per client identifier. Denials get
// a 429 with Retry-After and the X-RateLimit-* family of headers.
func RateLimit(limiter *ratelimit.Limiter, profile constants.Profile, metrics *monitoring.Metrics, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := ClientIdentifier(c)
		ctx := c.Request.Context()

		dec, err := limiter.Check(ctx, identifier, profile.Limit, profile.Window)
		if err != nil {
			// Invalid profile parameters are a programmer error; do not
			// let a misconfigured route take down traffic.
			log.Error(ctx, "rate limit check rejected parameters", err)
			c.Next()
			return
		}

		if metrics != nil {
			metrics.RecordRateLimit(dec.Allowed)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(profile.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(dec.ResetTime.Unix(), 10))

		if !dec.Allowed {
			retryAfter := int(dec.RetryAfter.Seconds())
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			log.Warn(ctx, "rate limit exceeded", logger.Fields{
				"identifier":  identifier,
				"retry_after": retryAfter,
			})
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "too many requests",
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}
