// Package abuse implements a pattern-based scoring engine that accumulates a
// per-identifier risk score and temporarily blocks identifiers that cross the
// threshold.
//
// Four detectors run on every message: spam (verbatim repetition within the
// trailing ten-message history), SQL injection, XSS, and suspicious payloads.
// Triggered detectors contribute fixed, additive scores. Once the running
// total reaches the threshold the identifier is blocked for a fixed duration;
// the score is not reset on unblock.
//
// Durable state lives in the shared store under the abuse:* namespaces with
// inactivity TTLs; the in-process fallback keeps equivalent state and sweeps
// entries idle for more than a day.
package abuse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nexabot/guardrail/internal/store"
	"github.com/nexabot/guardrail/pkg/constants"
	"github.com/nexabot/guardrail/pkg/logger"
)

// Violation records a single detected abuse pattern.
type Violation struct {
	Type      constants.ViolationType `json:"type"`
	Timestamp time.Time               `json:"timestamp"`
	Details   string                  `json:"details"`
	Severity  constants.Severity      `json:"severity"`
}

// Result is the verdict of a message check.
type Result struct {
	// Allowed reports whether the message may be processed.
	Allowed bool
	// Reason is a human-readable denial explanation, empty when allowed.
	Reason string
	// Score is the identifier's running abuse score after this check.
	Score int
	// Violations are the patterns this message triggered. Empty for denials
	// of an already-blocked identifier.
	Violations []Violation
}

// Status describes an identifier's current abuse state without mutating it.
type Status struct {
	Score        int
	Blocked      bool
	BlockedUntil time.Time
	// Violations holds the in-process violation log when present. The
	// durable tier does not persist individual violations.
	Violations []Violation
}

// Detector scores messages per identifier and blocks on threshold.
type Detector struct {
	store store.KeyValueStore
	log   logger.Logger
	mem   *memoryDetector
}

// New creates a Detector. The in-process sweeper runs until Close is called.
func New(kv store.KeyValueStore, log logger.Logger) *Detector {
	d := &Detector{
		store: kv,
		log:   log.WithComponent("abuse"),
		mem:   newMemoryDetector(),
	}
	if kv.Available() {
		d.log.Info(context.Background(), "abuse detector using durable store")
	} else {
		d.log.Warn(context.Background(), "abuse detector using in-memory storage, state is per-instance")
	}
	return d
}

// CheckMessage runs all detectors against message and updates the
// identifier's running score. A blocked identifier is denied immediately
// regardless of message content.
func (d *Detector) CheckMessage(ctx context.Context, identifier, message string) (Result, error) {
	if d.store.Available() {
		res, err := d.checkStore(ctx, identifier, message)
		if err == nil {
			return res, nil
		}
		d.log.Error(ctx, "durable abuse check failed, falling back to memory", err,
			logger.Fields{"identifier": identifier})
	}
	return d.mem.checkMessage(identifier, message), nil
}

// checkStore runs the detection pass against the durable tier.
func (d *Detector) checkStore(ctx context.Context, identifier, message string) (Result, error) {
	now := time.Now()
	blockKey := constants.AbuseBlockKeyPrefix + identifier
	scoreKey := constants.AbuseScoreKeyPrefix + identifier
	historyKey := constants.AbuseHistoryKeyPrefix + identifier

	blockedUntil, err := d.readMillis(ctx, blockKey)
	if err != nil {
		return Result{}, err
	}
	if blockedUntil > now.UnixMilli() {
		score, err := d.readInt(ctx, scoreKey)
		if err != nil {
			return Result{}, err
		}
		return blockedResult(time.UnixMilli(blockedUntil), score), nil
	}

	score, err := d.readInt(ctx, scoreKey)
	if err != nil {
		return Result{}, err
	}

	history, err := d.readHistory(ctx, historyKey)
	if err != nil {
		return Result{}, err
	}
	history = appendHistory(history, message)
	violations := detect(history, message, now)
	for _, v := range violations {
		score += constants.ViolationScores[v.Type]
	}

	if err := d.writeHistory(ctx, historyKey, history); err != nil {
		return Result{}, err
	}
	if err := d.store.Set(ctx, scoreKey, strconv.Itoa(score), constants.AbuseScoreTTL); err != nil {
		return Result{}, err
	}

	if score >= constants.AbuseScoreThreshold {
		until := now.Add(constants.AbuseBlockDuration)
		if err := d.store.Set(ctx, blockKey, strconv.FormatInt(until.UnixMilli(), 10), constants.AbuseBlockDuration); err != nil {
			return Result{}, err
		}
		d.log.Warn(ctx, "identifier blocked for abuse", logger.Fields{
			"identifier": identifier,
			"score":      score,
			"until":      until,
		})
		return Result{Allowed: false, Reason: "abuse threshold exceeded", Score: score, Violations: violations}, nil
	}

	return Result{Allowed: true, Score: score, Violations: violations}, nil
}

// Reset clears score, block state, and message history for identifier in
// both tiers.
func (d *Detector) Reset(ctx context.Context, identifier string) error {
	d.mem.reset(identifier)
	if !d.store.Available() {
		return nil
	}
	for _, key := range []string{
		constants.AbuseBlockKeyPrefix + identifier,
		constants.AbuseScoreKeyPrefix + identifier,
		constants.AbuseHistoryKeyPrefix + identifier,
	} {
		if err := d.store.Del(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// GetStatus returns the identifier's current score and block state without
// mutating it. Returns nil when no state is held.
func (d *Detector) GetStatus(ctx context.Context, identifier string) (*Status, error) {
	if d.store.Available() {
		st, err := d.statusStore(ctx, identifier)
		if err == nil {
			return st, nil
		}
		d.log.Error(ctx, "durable abuse status read failed, falling back to memory", err,
			logger.Fields{"identifier": identifier})
	}
	return d.mem.status(identifier), nil
}

func (d *Detector) statusStore(ctx context.Context, identifier string) (*Status, error) {
	scoreStr, err := d.store.Get(ctx, constants.AbuseScoreKeyPrefix+identifier)
	if err != nil {
		return nil, err
	}
	if scoreStr == "" {
		return nil, nil
	}
	score, _ := strconv.Atoi(scoreStr)

	blockedUntil, err := d.readMillis(ctx, constants.AbuseBlockKeyPrefix+identifier)
	if err != nil {
		return nil, err
	}

	st := &Status{Score: score, Blocked: blockedUntil > time.Now().UnixMilli()}
	if blockedUntil > 0 {
		st.BlockedUntil = time.UnixMilli(blockedUntil)
	}
	return st, nil
}

// Close stops the in-process sweeper.
func (d *Detector) Close() error {
	d.mem.stop()
	return nil
}

// detect runs all detectors and returns the triggered violations. The
// history passed in already includes the current message, so the spam
// threshold counts the current duplicate as well.
func detect(history []string, message string, now time.Time) []Violation {
	var violations []Violation

	if countIdentical(history, message) >= constants.SpamThreshold {
		violations = append(violations, Violation{
			Type:      constants.ViolationSpam,
			Timestamp: now,
			Details:   "repeated identical messages",
			Severity:  constants.SeverityLow,
		})
	}

	if ok, pattern := detectSQLInjection(message); ok {
		violations = append(violations, Violation{
			Type:      constants.ViolationSQLInjection,
			Timestamp: now,
			Details:   pattern,
			Severity:  constants.SeverityHigh,
		})
	}

	if ok, pattern := detectXSS(message); ok {
		violations = append(violations, Violation{
			Type:      constants.ViolationXSS,
			Timestamp: now,
			Details:   pattern,
			Severity:  constants.SeverityHigh,
		})
	}

	if ok, reason := detectSuspicious(message); ok {
		violations = append(violations, Violation{
			Type:      constants.ViolationSuspicious,
			Timestamp: now,
			Details:   reason,
			Severity:  constants.SeverityMedium,
		})
	}

	return violations
}

// appendHistory adds message to the trailing history, keeping the newest
// entries up to the history size bound.
func appendHistory(history []string, message string) []string {
	history = append(history, message)
	if len(history) > constants.SpamHistorySize {
		history = history[len(history)-constants.SpamHistorySize:]
	}
	return history
}

func blockedResult(until time.Time, score int) Result {
	return Result{
		Allowed: false,
		Reason:  fmt.Sprintf("blocked due to abuse, try again after %s", until.Format(time.RFC3339)),
		Score:   score,
	}
}

func (d *Detector) readMillis(ctx context.Context, key string) (int64, error) {
	val, err := d.store.Get(ctx, key)
	if err != nil || val == "" {
		return 0, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Malformed value; treat as absent.
		return 0, nil
	}
	return ms, nil
}

func (d *Detector) readInt(ctx context.Context, key string) (int, error) {
	val, err := d.store.Get(ctx, key)
	if err != nil || val == "" {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (d *Detector) readHistory(ctx context.Context, key string) ([]string, error) {
	val, err := d.store.Get(ctx, key)
	if err != nil || val == "" {
		return nil, err
	}
	var history []string
	if err := json.Unmarshal([]byte(val), &history); err != nil {
		// Malformed history is discarded and rebuilt.
		return nil, nil
	}
	return history, nil
}

func (d *Detector) writeHistory(ctx context.Context, key string, history []string) error {
	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, key, string(data), constants.AbuseHistoryTTL)
}
