package daemon

import (
	"sync"
	"time"

	"github.com/fuelhq/fuel/internal/store"
)

// maxCooldown caps escalation regardless of how many thresholds an
// agent crosses in a row.
const maxCooldown = time.Hour

// HealthTracker counts consecutive failures per agent and puts a
// repeatedly failing agent in cool-down so it stops being dispatched.
// Cool-down doubles each time the threshold is crossed again.
type HealthTracker struct {
	mu        sync.Mutex
	agents    map[string]*agentHealth
	threshold int
	base      time.Duration
	now       func() time.Time
}

type agentHealth struct {
	failures      int
	cooldownUntil time.Time
	escalation    time.Duration // next cool-down length
}

// NewHealthTracker builds a tracker with the configured threshold and
// base cool-down.
func NewHealthTracker(threshold int, cooldown time.Duration) *HealthTracker {
	return &HealthTracker{
		agents:    make(map[string]*agentHealth),
		threshold: threshold,
		base:      cooldown,
		now:       time.Now,
	}
}

func (h *HealthTracker) get(agent string) *agentHealth {
	a, ok := h.agents[agent]
	if !ok {
		a = &agentHealth{escalation: h.base}
		h.agents[agent] = a
	}
	return a
}

// Failure records a failed run. Crossing the threshold starts a
// cool-down and doubles the next one.
func (h *HealthTracker) Failure(agent string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.get(agent)
	a.failures++
	if a.failures < h.threshold {
		return
	}
	a.cooldownUntil = h.now().Add(a.escalation)
	a.escalation *= 2
	if a.escalation > maxCooldown {
		a.escalation = maxCooldown
	}
	a.failures = 0
}

// Success resets the agent's failure streak and escalation.
func (h *HealthTracker) Success(agent string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.get(agent)
	a.failures = 0
	a.escalation = h.base
	a.cooldownUntil = time.Time{}
}

// Cooling reports whether the agent is currently in cool-down.
func (h *HealthTracker) Cooling(agent string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[agent]
	return ok && h.now().Before(a.cooldownUntil)
}

// CoolingAgents lists agents currently in cool-down.
func (h *HealthTracker) CoolingAgents() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	now := h.now()
	for name, a := range h.agents {
		if now.Before(a.cooldownUntil) {
			out = append(out, name)
		}
	}
	return out
}

// Reset clears all health state, for the health:reset command.
func (h *HealthTracker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agents = make(map[string]*agentHealth)
}

// Rebuild replays recent runs (oldest first) so a restarted daemon
// remembers failure streaks. Deadlines from before the restart are
// gone; a streak crossing the threshold during replay starts a fresh
// cool-down from now.
func (h *HealthTracker) Rebuild(runs []store.Run) {
	for _, r := range runs {
		if r.ExitCode == nil {
			continue
		}
		if *r.ExitCode == 0 {
			h.Success(r.Agent)
		} else {
			h.Failure(r.Agent)
		}
	}
}
