package budget

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic refill tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T, capacity int, cooldown time.Duration) (*Tracker, *fakeClock) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	tracker, err := NewTracker(log, &Config{Capacity: capacity, Cooldown: cooldown})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	tracker.now = clock.Now
	tracker.lastRefill = clock.Now()

	return tracker, clock
}

func TestNewTracker_InvalidConfig(t *testing.T) {
	log := logrus.New()

	_, err := NewTracker(log, &Config{Capacity: 0, Cooldown: time.Second})
	require.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = NewTracker(log, &Config{Capacity: 10, Cooldown: 0})
	require.ErrorIs(t, err, ErrInvalidCooldown)
}

func TestTracker_AdmitConsumesUnits(t *testing.T) {
	tracker, _ := newTestTracker(t, 3, time.Second)

	assert.True(t, tracker.Admit())
	assert.True(t, tracker.Admit())
	assert.True(t, tracker.Admit())
	assert.False(t, tracker.Admit(), "allowance exhausted")
	assert.Equal(t, 0, tracker.Remaining())
}

func TestTracker_RefillNeverExceedsCapacity(t *testing.T) {
	tracker, clock := newTestTracker(t, 5, time.Second)

	clock.Advance(time.Hour)

	assert.Equal(t, 5, tracker.Remaining())
}

func TestTracker_RefillIsMonotonic(t *testing.T) {
	tracker, clock := newTestTracker(t, 10, time.Second)

	for range 10 {
		require.True(t, tracker.Admit())
	}

	previous := tracker.Remaining()
	for range 20 {
		clock.Advance(250 * time.Millisecond)

		current := tracker.Remaining()
		assert.GreaterOrEqual(t, current, previous)
		assert.LessOrEqual(t, current, 10)
		previous = current
	}
}

func TestTracker_RefillPreservesFractionalCredit(t *testing.T) {
	tracker, clock := newTestTracker(t, 10, time.Second)

	for range 10 {
		require.True(t, tracker.Admit())
	}

	// 1.5 cooldowns elapse: one unit credited, half a cooldown banked.
	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, tracker.Remaining())

	// Another half cooldown completes the banked credit.
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, tracker.Remaining())
}

func TestTracker_ForceExhaust(t *testing.T) {
	tracker, clock := newTestTracker(t, 5, time.Second)

	tracker.ForceExhaust()
	assert.Equal(t, 0, tracker.Remaining())
	assert.False(t, tracker.Admit())

	// Recovery resumes through passive refill.
	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, tracker.Remaining())
	assert.True(t, tracker.Admit())
}

func TestTracker_ConcurrentAdmitNeverOversells(t *testing.T) {
	tracker, _ := newTestTracker(t, 50, time.Minute)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	for range 200 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if tracker.Admit() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, admitted)
}
