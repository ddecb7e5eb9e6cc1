package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborkv/dsgate/pkg/observability"
)

// Tracker manages the remaining request allowance. All state is guarded by a
// mutex; admission and refill are a single critical section so concurrent
// callers can never observe a partially applied refill.
type Tracker struct {
	log logrus.FieldLogger

	mu         sync.Mutex
	remaining  int
	capacity   int
	cooldown   time.Duration
	lastRefill time.Time

	now func() time.Time
}

// NewTracker creates a budget tracker starting at full capacity.
func NewTracker(log logrus.FieldLogger, cfg *Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid budget configuration: %w", err)
	}

	t := &Tracker{
		log:       log.WithField("component", "budget"),
		remaining: cfg.Capacity,
		capacity:  cfg.Capacity,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
	t.lastRefill = t.now()

	observability.BudgetRemaining.Set(float64(t.remaining))

	return t, nil
}

// Admit reports whether a call may proceed, consuming one unit if so.
// Replenishment for elapsed time is applied before the check.
func (t *Tracker) Admit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked(t.now())

	if t.remaining <= 0 {
		return false
	}

	t.remaining--
	observability.BudgetRemaining.Set(float64(t.remaining))

	return true
}

// Remaining returns the current allowance after applying replenishment.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked(t.now())

	return t.remaining
}

// Capacity returns the configured maximum allowance.
func (t *Tracker) Capacity() int {
	return t.capacity
}

// ForceExhaust drops the allowance to zero. Called when the remote store
// reports an out-of-band throttling or quota error, so the tracker converges
// to ground truth faster than passive refill would.
func (t *Tracker) ForceExhaust() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remaining = 0
	t.lastRefill = t.now()

	observability.BudgetRemaining.Set(0)
	observability.BudgetExhaustionsTotal.Inc()

	t.log.Warn("Request budget force-exhausted after throttle signal")
}

// refillLocked credits one unit per elapsed cooldown, capped at capacity.
// lastRefill advances only by the cooldown actually consumed so fractional
// credit is never lost between calls.
func (t *Tracker) refillLocked(now time.Time) {
	elapsed := now.Sub(t.lastRefill)
	if elapsed < t.cooldown {
		return
	}

	units := int(elapsed / t.cooldown)

	t.remaining += units
	if t.remaining >= t.capacity {
		t.remaining = t.capacity
		// At capacity there is no fractional credit worth preserving.
		t.lastRefill = now
	} else {
		t.lastRefill = t.lastRefill.Add(time.Duration(units) * t.cooldown)
	}

	observability.BudgetRemaining.Set(float64(t.remaining))
}
