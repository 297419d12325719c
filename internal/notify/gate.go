package notify

import (
	"sort"
	"sync"
	"time"
)

// DefaultThresholds are the score levels that trigger a notification when crossed.
var DefaultThresholds = []int{60, 75, 85}

// DefaultSignificantChange is the score delta that triggers a notification on its own.
const DefaultSignificantChange = 15

// ShouldNotify decides whether a score change is worth telling sales about.
// It notifies when |current-previous| reaches significantChange, or when the
// score rises across a threshold (previous < t <= current). An unknown
// previous score counts as 0.
func ShouldNotify(current int, previous *int, thresholds []int, significantChange int) bool {
	prev := 0
	if previous != nil {
		prev = *previous
		if significantChange > 0 && abs(current-prev) >= significantChange {
			return true
		}
	}
	return len(crossed(prev, current, thresholds)) > 0
}

// Reason explains why a Decision fired or was suppressed.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonSignificantChange Reason = "significant_change"
	ReasonThreshold         Reason = "threshold_crossed"
	ReasonAlreadyNotified   Reason = "already_notified"
	ReasonCooldown          Reason = "cooldown"
)

// Decision is the result of Gate.Evaluate.
type Decision struct {
	Notify     bool
	Reason     Reason
	Thresholds []int
}

// GateConfig tunes the per-session hysteresis.
//
// Cooldown suppresses significant-change notifications for a session that
// was notified recently. RearmMargin is how far the score must fall below a
// threshold before crossing it again notifies again. Zero values for both
// reproduce plain ShouldNotify behavior.
type GateConfig struct {
	Thresholds        []int         `json:"thresholds"`
	SignificantChange int           `json:"significantChange"`
	Cooldown          time.Duration `json:"cooldown"`
	RearmMargin       int           `json:"rearmMargin"`
}

type gateState struct {
	notified     map[int]bool
	lastNotified time.Time
}

// Gate wraps ShouldNotify with per-session memory so each threshold crossing
// notifies once.
type Gate struct {
	cfg GateConfig
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*gateState
}

// NewGate creates a gate. A nil clock uses time.Now.
func NewGate(cfg GateConfig, now func() time.Time) *Gate {
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds
	}
	thresholds := append([]int(nil), cfg.Thresholds...)
	sort.Ints(thresholds)
	cfg.Thresholds = thresholds
	if now == nil {
		now = time.Now
	}
	return &Gate{cfg: cfg, now: now, sessions: make(map[string]*gateState)}
}

// Config returns the effective configuration.
func (g *Gate) Config() GateConfig { return g.cfg }

// Evaluate must be called once per qualification update with the score
// captured before the update.
func (g *Gate) Evaluate(sessionID string, previous, current int) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.sessions[sessionID]
	if st == nil {
		st = &gateState{notified: make(map[int]bool)}
		g.sessions[sessionID] = st
	}
	for t := range st.notified {
		if current < t-g.cfg.RearmMargin {
			delete(st.notified, t)
		}
	}

	if !ShouldNotify(current, &previous, g.cfg.Thresholds, g.cfg.SignificantChange) {
		return Decision{}
	}

	now := g.now()
	var fresh []int
	for _, t := range crossed(previous, current, g.cfg.Thresholds) {
		if !st.notified[t] {
			fresh = append(fresh, t)
		}
	}
	significant := g.cfg.SignificantChange > 0 && abs(current-previous) >= g.cfg.SignificantChange

	switch {
	case len(fresh) > 0:
		for _, t := range fresh {
			st.notified[t] = true
		}
		st.lastNotified = now
		reason := ReasonThreshold
		if significant {
			reason = ReasonSignificantChange
		}
		return Decision{Notify: true, Reason: reason, Thresholds: fresh}
	case significant:
		if g.cfg.Cooldown > 0 && !st.lastNotified.IsZero() && now.Sub(st.lastNotified) < g.cfg.Cooldown {
			return Decision{Reason: ReasonCooldown}
		}
		st.lastNotified = now
		return Decision{Notify: true, Reason: ReasonSignificantChange}
	default:
		return Decision{Reason: ReasonAlreadyNotified}
	}
}

// Forget drops the memory for a finished session.
func (g *Gate) Forget(sessionID string) {
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
}

func crossed(previous, current int, thresholds []int) []int {
	var out []int
	for _, t := range thresholds {
		if previous < t && t <= current {
			out = append(out, t)
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
