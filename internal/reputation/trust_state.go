package reputation

import (
	"sync"
	"time"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// Pressure thresholds for trust-state escalation. The EWMA input is each
// event's severity (its negative impact magnitude, see severityOf); repeated
// events accumulate via the EWMA rather than summing unboundedly.
var trustThresholds = struct {
	Watched, Suspended, Slashed float64
}{Watched: 0.3, Suspended: 0.6, Slashed: 1.0}

// trustLadder holds the mutable trust-state for a single node. Escalation
// only ever moves toward Slashed; Decay moves at most one level back
// toward Trusted. Slashed never decays on its own (mirrors the teacher's
// Escalate/Decay contract, with the terminal state renamed).
type trustLadder struct {
	mu        sync.Mutex
	current   model.TrustState
	enteredAt time.Time
	pressure  *pressureAccumulator
}

func newTrustLadder() *trustLadder {
	return &trustLadder{current: model.TrustTrusted, enteredAt: time.Now(), pressure: newPressureAccumulator(0.8)}
}

func (t *trustLadder) state() model.TrustState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// observe feeds one event's severity into the pressure accumulator and
// escalates the trust state if the resulting EWMA crosses a threshold.
func (t *trustLadder) observe(severity float64) model.TrustState {
	p := t.pressure.update(severity)
	target := targetTrustState(p)
	t.mu.Lock()
	defer t.mu.Unlock()
	if target > t.current {
		t.current = target
		t.enteredAt = time.Now()
	}
	return t.current
}

// decay moves the trust state down at most one level, never below
// Trusted and never automatically out of Slashed.
func (t *trustLadder) decay() (model.TrustState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == model.TrustTrusted || t.current == model.TrustSlashed {
		return t.current, false
	}
	t.current--
	t.enteredAt = time.Now()
	t.pressure.reset()
	return t.current, true
}

func targetTrustState(pressure float64) model.TrustState {
	switch {
	case pressure >= trustThresholds.Slashed:
		return model.TrustSlashed
	case pressure >= trustThresholds.Suspended:
		return model.TrustSuspended
	case pressure >= trustThresholds.Watched:
		return model.TrustWatched
	default:
		return model.TrustTrusted
	}
}

// severityOf converts an event's configured Δ into a non-negative pressure
// input: only negative impacts (bad events) build pressure.
func severityOf(impact float64) float64 {
	if impact >= 0 {
		return 0
	}
	return -impact
}

