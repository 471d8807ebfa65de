package ratelimit

import (
	"sync"
	"time"

	"github.com/nexabot/guardrail/pkg/constants"
)

// Status describes the in-process window state for one identifier.
type Status struct {
	Requests     int
	Blocked      bool
	BlockedUntil time.Time
}

type windowEntry struct {
	requests     []int64 // admitted request timestamps, unix millis, ascending
	blocked      bool
	blockedUntil int64
}

// memoryLimiter is the in-process fallback. Once an identifier hits the
// limit it is marked blocked until the oldest timestamp would have expired;
// when the block elapses its history is cleared and checking resumes from
// empty state.
type memoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	done    chan struct{}
}

func newMemoryLimiter() *memoryLimiter {
	m := &memoryLimiter{
		entries: make(map[string]*windowEntry),
		done:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *memoryLimiter) check(identifier string, limit int, window time.Duration) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	nowMs := now.UnixMilli()
	entry := m.entries[identifier]

	if entry != nil && entry.blocked {
		if nowMs < entry.blockedUntil {
			reset := time.UnixMilli(entry.blockedUntil)
			return Decision{
				Allowed:    false,
				Remaining:  0,
				ResetTime:  reset,
				RetryAfter: retryAfter(reset, now),
			}
		}
		entry.blocked = false
		entry.blockedUntil = 0
		entry.requests = nil
	}

	var requests []int64
	if entry != nil {
		requests = entry.requests
	}

	// Drop timestamps outside the sliding window.
	windowStart := nowMs - window.Milliseconds()
	recent := requests[:0:0]
	for _, ts := range requests {
		if ts > windowStart {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= limit {
		blockedUntil := recent[0] + window.Milliseconds()
		m.entries[identifier] = &windowEntry{
			requests:     recent,
			blocked:      true,
			blockedUntil: blockedUntil,
		}
		reset := time.UnixMilli(blockedUntil)
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: retryAfter(reset, now),
		}
	}

	recent = append(recent, nowMs)
	m.entries[identifier] = &windowEntry{requests: recent}

	return Decision{
		Allowed:   true,
		Remaining: limit - len(recent),
		ResetTime: time.UnixMilli(recent[0]).Add(window),
	}
}

func (m *memoryLimiter) reset(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, identifier)
}

func (m *memoryLimiter) status(identifier string) *Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[identifier]
	if !ok {
		return nil
	}
	st := &Status{
		Requests: len(entry.requests),
		Blocked:  entry.blocked,
	}
	if entry.blockedUntil > 0 {
		st.BlockedUntil = time.UnixMilli(entry.blockedUntil)
	}
	return st
}

// sweepLoop removes identifiers with no recent activity.
func (m *memoryLimiter) sweepLoop() {
	ticker := time.NewTicker(constants.RateLimitSweepInterval)
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

func (m *memoryLimiter) sweep() {
	cutoff := time.Now().Add(-constants.RateLimitMemoryMaxAge).UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.entries {
		if len(entry.requests) == 0 || entry.requests[len(entry.requests)-1] < cutoff {
			delete(m.entries, id)
		}
	}
}

func (m *memoryLimiter) stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}
