package signal

import (
	"sync"
	"time"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
)

// BindRateLimiter caps how often one session may (re)bind to a room
// within a sliding window. Rebinding tears down registry and engine
// state, so it is the one event worth throttling.
type BindRateLimiter struct {
	mu       sync.Mutex
	history  map[core.SessionID][]time.Time
	limit    int
	interval time.Duration
}

func NewBindRateLimiter(limit int, interval time.Duration) *BindRateLimiter {
	return &BindRateLimiter{
		history:  make(map[core.SessionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *BindRateLimiter) Allow(sid core.SessionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[sid] = fresh
	return true
}

// Forget drops a session's history, e.g. when it disconnects.
func (rl *BindRateLimiter) Forget(sid core.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, sid)
}
