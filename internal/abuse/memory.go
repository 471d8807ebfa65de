package abuse

import (
	"sync"
	"time"

	"github.com/nexabot/guardrail/pkg/constants"
)

type abuseEntry struct {
	violations   []Violation
	blocked      bool
	blockedUntil time.Time
	score        int
}

// memoryDetector is the in-process fallback. Scores carry forward from the
// last known value; entries idle for more than a day are swept.
type memoryDetector struct {
	mu      sync.Mutex
	entries map[string]*abuseEntry
	history map[string][]string
	done    chan struct{}
}

func newMemoryDetector() *memoryDetector {
	m := &memoryDetector{
		entries: make(map[string]*abuseEntry),
		history: make(map[string][]string),
		done:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *memoryDetector) checkMessage(identifier, message string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	entry := m.entries[identifier]

	if entry != nil && entry.blocked && now.Before(entry.blockedUntil) {
		return blockedResult(entry.blockedUntil, entry.score)
	}

	history := appendHistory(m.history[identifier], message)
	m.history[identifier] = history

	violations := detect(history, message, now)

	score := 0
	var kept []Violation
	if entry != nil {
		score = entry.score
		kept = entry.violations
	}
	for _, v := range violations {
		score += constants.ViolationScores[v.Type]
	}
	kept = append(kept, violations...)

	if score >= constants.AbuseScoreThreshold {
		m.entries[identifier] = &abuseEntry{
			violations:   kept,
			blocked:      true,
			blockedUntil: now.Add(constants.AbuseBlockDuration),
			score:        score,
		}
		return Result{Allowed: false, Reason: "abuse threshold exceeded", Score: score, Violations: violations}
	}

	m.entries[identifier] = &abuseEntry{violations: kept, score: score}
	return Result{Allowed: true, Score: score, Violations: violations}
}

func (m *memoryDetector) reset(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, identifier)
	delete(m.history, identifier)
}

func (m *memoryDetector) status(identifier string) *Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[identifier]
	if !ok {
		return nil
	}
	st := &Status{
		Score:        entry.score,
		Blocked:      entry.blocked && time.Now().Before(entry.blockedUntil),
		BlockedUntil: entry.blockedUntil,
		Violations:   append([]Violation(nil), entry.violations...),
	}
	return st
}

func (m *memoryDetector) sweepLoop() {
	ticker := time.NewTicker(constants.AbuseSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *memoryDetector) sweep() {
	cutoff := time.Now().Add(-constants.AbuseMemoryMaxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.entries {
		if len(entry.violations) == 0 || entry.violations[len(entry.violations)-1].Timestamp.Before(cutoff) {
			delete(m.entries, id)
		}
	}
	for id, history := range m.history {
		if len(history) == 0 {
			delete(m.history, id)
		}
	}
}

func (m *memoryDetector) stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}
