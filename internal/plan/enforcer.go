package plan

import (
	"context"

	"github.com/nexabot/guardrail/pkg/logger"
)

// UsageSource supplies current usage counts for a user. Implementations query
// the backing database; the enforcer itself stays free of persistence
// concerns.
type UsageSource interface {
	// PlanName returns the user's subscription plan.
	PlanName(ctx context.Context, userID string) (string, error)
	// ActiveBotCount returns the number of active bots owned by the user.
	ActiveBotCount(ctx context.Context, userID string) (int, error)
	// MonthlyMessageCount returns the user's message count for the current
	// calendar month.
	MonthlyMessageCount(ctx context.Context, userID string) (int, error)
	// StorageBytes returns the user's total active document storage.
	StorageBytes(ctx context.Context, userID string) (int64, error)
	// DocumentCount returns the user's active document count.
	DocumentCount(ctx context.Context, userID string) (int, error)
}

// Enforcement is the outcome of a usage check, carrying enough detail for
// callers to render an upgrade prompt.
type Enforcement struct {
	Allowed      bool
	Message      string
	CurrentUsage int
	Limit        int
}

// Enforcer evaluates a user's current usage against their plan ceilings.
type Enforcer struct {
	usage UsageSource
	log   logger.Logger
}

// NewEnforcer creates an Enforcer backed by the given usage source.
func NewEnforcer(usage UsageSource, log logger.Logger) *Enforcer {
	return &Enforcer{usage: usage, log: log.WithComponent("plan")}
}

// Check evaluates one quota dimension for a user. Usage-source failures deny
// with a generic message rather than returning an error to the request path.
func (e *Enforcer) Check(ctx context.Context, userID string, limitType LimitType) Enforcement {
	planName, err := e.usage.PlanName(ctx, userID)
	if err != nil {
		e.log.Error(ctx, "plan lookup failed", err, logger.Fields{"user_id": userID})
		return Enforcement{Allowed: false, Message: "unable to verify plan limits"}
	}
	limits := For(planName)

	var current, limit int
	switch limitType {
	case LimitBots:
		limit = limits.MaxBots
		current, err = e.usage.ActiveBotCount(ctx, userID)
	case LimitMessages:
		limit = limits.MonthlyMessages
		current, err = e.usage.MonthlyMessageCount(ctx, userID)
	case LimitStorage:
		limit = limits.MaxStorageMB
		var bytes int64
		bytes, err = e.usage.StorageBytes(ctx, userID)
		current = int(bytes / (1024 * 1024))
	case LimitDocuments:
		limit = limits.MaxDocuments
		current, err = e.usage.DocumentCount(ctx, userID)
	default:
		return Enforcement{Allowed: false, Message: "invalid limit type"}
	}
	if err != nil {
		e.log.Error(ctx, "usage lookup failed", err,
			logger.Fields{"user_id": userID, "limit_type": limitType})
		return Enforcement{Allowed: false, Message: "unable to verify plan limits"}
	}

	verdict := CheckLimit(current, limit, limitType)
	return Enforcement{
		Allowed:      verdict.Allowed,
		Message:      verdict.Message,
		CurrentUsage: current,
		Limit:        limit,
	}
}
