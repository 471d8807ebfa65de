package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexabot/guardrail/internal/monitoring"
	"github.com/nexabot/guardrail/internal/plan"
	"github.com/nexabot/guardrail/pkg/logger"
)

// EnforcePlanLimit checks one quota dimension for the authenticated user
// before the handler runs. Denials get a 403 carrying the limit and current
// usage so clients can render an upgrade prompt.
//
// The user id is taken from the X-User-ID header placed there by the
// authentication layer upstream of this middleware.
func EnforcePlanLimit(enforcer *plan.Enforcer, limitType plan.LimitType, metrics *monitoring.Metrics, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		result := enforcer.Check(c.Request.Context(), userID, limitType)
		if !result.Allowed {
			if metrics != nil {
				metrics.RecordPlanDenial(string(limitType))
			}
			log.Warn(c.Request.Context(), "plan limit denied", logger.Fields{
				"user_id":    userID,
				"limit_type": limitType,
				"usage":      result.CurrentUsage,
				"limit":      result.Limit,
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":        "plan limit exceeded",
				"message":      result.Message,
				"currentUsage": result.CurrentUsage,
				"limit":        result.Limit,
				"upgradeUrl":   "/dashboard/billing",
			})
			return
		}

		c.Next()
	}
}
