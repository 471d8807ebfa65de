// Package constants defines shared constants for the guardrail request-governance
// layer: key namespaces, abuse scoring, TTLs, and the predefined rate-limit profiles.
package constants

import "time"

// ContextKey is the type used for values stored in a context.Context.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id.
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyIdentifier carries the governance identifier (IP or user id).
	ContextKeyIdentifier ContextKey = "identifier"
)

// Redis key namespaces. Each component owns its prefix; namespaces never
// overlap, so no cross-component coordination is needed on the shared store.
const (
	RateLimitKeyPrefix    = "ratelimit:"
	AbuseBlockKeyPrefix   = "abuse:block:"
	AbuseScoreKeyPrefix   = "abuse:score:"
	AbuseHistoryKeyPrefix = "abuse:history:"
	BotConfigKeyPrefix    = "bot:config:"
)

// ViolationType categorizes a detected abuse pattern.
type ViolationType string

const (
	ViolationSpam         ViolationType = "spam"
	ViolationSQLInjection ViolationType = "sql_injection"
	ViolationXSS          ViolationType = "xss"
	ViolationBruteForce   ViolationType = "brute_force"
	ViolationSuspicious   ViolationType = "suspicious"
)

// ViolationScores maps each violation type to its additive score contribution.
var ViolationScores = map[ViolationType]int{
	ViolationSpam:         10,
	ViolationSQLInjection: 50,
	ViolationXSS:          50,
	ViolationBruteForce:   30,
	ViolationSuspicious:   20,
}

// Severity describes how serious a violation is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Abuse detection thresholds and lifetimes.
const (
	// SpamThreshold is the number of identical messages in the trailing
	// history that flags the current message as spam.
	SpamThreshold = 3
	// SpamHistorySize bounds the per-identifier trailing message history.
	SpamHistorySize = 10
	// AbuseScoreThreshold is the accumulated score at which an identifier
	// is blocked.
	AbuseScoreThreshold = 100
	// AbuseBlockDuration is how long a blocked identifier stays blocked.
	AbuseBlockDuration = time.Hour
	// AbuseScoreTTL is how long a durable score key lives without activity.
	AbuseScoreTTL = time.Hour
	// AbuseHistoryTTL is how long a durable message-history key lives.
	AbuseHistoryTTL = 10 * time.Minute
	// AbuseMemoryMaxAge is the age after which idle in-memory abuse entries
	// are swept.
	AbuseMemoryMaxAge = 24 * time.Hour
	// AbuseSweepInterval is how often the in-memory abuse store sweeps.
	AbuseSweepInterval = 10 * time.Minute
)

// Bot configuration cache parameters.
const (
	BotCacheTTL           = 300 * time.Second
	BotCacheSweepInterval = 5 * time.Minute
)

// Bot configuration defaults applied when the backing record leaves a field empty.
const (
	DefaultBotModel        = "gpt-3.5-turbo"
	DefaultBotSystemPrompt = "You are a helpful assistant."
	DefaultBotTemperature  = 0.7
	DefaultBotMaxTokens    = 500
)

// Rate limiter parameters.
const (
	// RateLimitKeyGrace is added to the window when setting key expiry so a
	// denied identifier's history survives until its reset time.
	RateLimitKeyGrace = 60 * time.Second
	// RateLimitMemoryMaxAge is the age after which idle in-memory windows
	// are swept.
	RateLimitMemoryMaxAge = time.Hour
	// RateLimitSweepInterval is how often the in-memory fallback sweeps.
	RateLimitSweepInterval = 5 * time.Minute
)

// Profile is a predefined rate-limit policy callers select by category.
type Profile struct {
	Limit  int
	Window time.Duration
}

// Predefined rate-limit profiles. The limiter itself is parameterized purely
// by limit and window; collaborators pick whichever profile fits the route.
var (
	ProfileAPIGeneral   = Profile{Limit: 100, Window: 15 * time.Minute}
	ProfileAPIStrict    = Profile{Limit: 20, Window: 15 * time.Minute}
	ProfileChatMessage  = Profile{Limit: 50, Window: time.Minute}
	ProfileChatSession  = Profile{Limit: 200, Window: time.Hour}
	ProfileAuthLogin    = Profile{Limit: 5, Window: 15 * time.Minute}
	ProfileAuthSignup   = Profile{Limit: 3, Window: time.Hour}
	ProfileFileUpload   = Profile{Limit: 10, Window: time.Hour}
	ProfileFileDownload = Profile{Limit: 50, Window: time.Hour}
	ProfileTraining     = Profile{Limit: 5, Window: time.Hour}
	ProfileEmbedding    = Profile{Limit: 20, Window: time.Hour}
)
