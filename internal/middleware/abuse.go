package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexabot/guardrail/internal/abuse"
	"github.com/nexabot/guardrail/internal/monitoring"
	"github.com/nexabot/guardrail/pkg/logger"
)

// DenyAbusive maps an abuse check result to a 403 response. It returns true
// when the request was aborted, so handlers can short-circuit:
//
//	res, _ := detector.CheckMessage(ctx, id, req.Message)
//	if middleware.DenyAbusive(c, res, metrics, log) {
//		return
//	}
func DenyAbusive(c *gin.Context, res abuse.Result, metrics *monitoring.Metrics, log logger.Logger) bool {
	if metrics != nil {
		metrics.RecordAbuse(res.Allowed)
		for _, v := range res.Violations {
			metrics.RecordViolation(string(v.Type))
		}
	}
	if res.Allowed {
		return false
	}

	log.Warn(c.Request.Context(), "abusive message denied", logger.Fields{
		"reason": res.Reason,
		"score":  res.Score,
	})
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":  "message rejected",
		"reason": res.Reason,
		"score":  res.Score,
	})
	return true
}
