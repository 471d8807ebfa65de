// Package plan provides stateless quota evaluation against subscription plan
// ceilings. Usage counts are supplied by collaborators (database aggregates,
// cache counters); this package holds no state and performs no I/O of its own.
package plan

import "fmt"

// LimitType names a quota dimension.
type LimitType string

const (
	LimitMessages  LimitType = "messages"
	LimitBots      LimitType = "bots"
	LimitUsers     LimitType = "users"
	LimitDocuments LimitType = "documents"
	LimitStorage   LimitType = "storage"
)

// Unlimited marks a quota with no ceiling.
const Unlimited = -1

// Limits is a plan-keyed record of quota ceilings.
type Limits struct {
	Name            string
	MonthlyMessages int
	MaxBots         int
	MaxUsers        int
	MaxDocuments    int
	MaxStorageMB    int
	Features        []string
}

// PlanLimits holds the quota tables for every subscription tier.
var PlanLimits = map[string]Limits{
	"free": {
		Name:            "Free",
		MonthlyMessages: 100,
		MaxBots:         1,
		MaxUsers:        0,
		MaxDocuments:    5,
		MaxStorageMB:    50,
		Features:        []string{"basic_chat", "wordpress_plugin"},
	},
	"basic": {
		Name:            "Basic",
		MonthlyMessages: 1000,
		MaxBots:         3,
		MaxUsers:        2,
		MaxDocuments:    20,
		MaxStorageMB:    500,
		Features:        []string{"basic_chat", "wordpress_plugin", "document_training", "email_support"},
	},
	"pro": {
		Name:            "Pro",
		MonthlyMessages: 10000,
		MaxBots:         10,
		MaxUsers:        10,
		MaxDocuments:    100,
		MaxStorageMB:    5000,
		Features: []string{
			"basic_chat", "wordpress_plugin", "document_training",
			"priority_support", "custom_branding", "analytics",
		},
	},
	"enterprise": {
		Name:            "Enterprise",
		MonthlyMessages: Unlimited,
		MaxBots:         Unlimited,
		MaxUsers:        Unlimited,
		MaxDocuments:    Unlimited,
		MaxStorageMB:    Unlimited,
		Features: []string{
			"basic_chat", "wordpress_plugin", "document_training",
			"priority_support", "custom_branding", "analytics",
			"dedicated_support", "custom_integrations", "sla",
		},
	},
}

// Verdict is the outcome of a limit check.
type Verdict struct {
	Allowed bool
	Message string
}

// CheckLimit compares a current usage value against a ceiling. A limit of
// Unlimited always allows; otherwise usage at or above the ceiling denies
// with a type-specific message.
func CheckLimit(currentValue, limit int, limitType LimitType) Verdict {
	if limit == Unlimited {
		return Verdict{Allowed: true}
	}
	if currentValue >= limit {
		return Verdict{Allowed: false, Message: limitMessage(limit, limitType)}
	}
	return Verdict{Allowed: true}
}

func limitMessage(limit int, limitType LimitType) string {
	switch limitType {
	case LimitMessages:
		return fmt.Sprintf("You've reached your monthly message limit (%d). Upgrade your plan to continue.", limit)
	case LimitBots:
		return fmt.Sprintf("You've reached your bot limit (%d). Upgrade to create more bots.", limit)
	case LimitUsers:
		return fmt.Sprintf("You've reached your team member limit (%d). Upgrade to add more users.", limit)
	case LimitDocuments:
		return fmt.Sprintf("You've reached your document limit (%d). Upgrade to upload more documents.", limit)
	case LimitStorage:
		return fmt.Sprintf("You've reached your storage limit (%dMB). Upgrade for more storage.", limit)
	}
	return fmt.Sprintf("You've reached your plan limit (%d).", limit)
}

// For returns the limits for a plan name, defaulting to the free tier for
// unknown plans.
func For(planName string) Limits {
	if limits, ok := PlanLimits[planName]; ok {
		return limits
	}
	return PlanLimits["free"]
}

// HasFeature reports whether a plan includes a named feature.
func HasFeature(planName, feature string) bool {
	for _, f := range For(planName).Features {
		if f == feature {
			return true
		}
	}
	return false
}

// UsagePercent returns current usage as a whole percentage of the limit.
// Unlimited yields 0; a zero limit is treated as fully used.
func UsagePercent(current, limit int) int {
	if limit == Unlimited {
		return 0
	}
	if limit == 0 {
		return 100
	}
	return int(float64(current)/float64(limit)*100 + 0.5)
}
