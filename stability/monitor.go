// Package stability decides when an observed count has genuinely settled
// at the configured target. Single-frame detector jitter (a momentary
// under- or over-count) is absorbed by requiring the count to hold steady
// for a randomized settle window before anything fires.
//
// The monitor is a pure state machine: no goroutines, no locks. It is
// touched only from the processing loop's goroutine.
package stability

import (
	"math/rand"
	"time"
)

const (
	defaultSettleMin = 2 * time.Second
	defaultSettleMax = 5 * time.Second
)

// Status is a display snapshot of the monitor.
type Status struct {
	Target   int
	Count    int
	MaxCount int

	// Reached is true while an equality episode is in progress.
	Reached bool
	// Notified is true once the caller acknowledged this episode.
	Notified bool
	// Settle is the window drawn for the current episode.
	Settle time.Duration
	// Remaining is how much of the settle window is left; zero once the
	// window has elapsed or when no episode is in progress.
	Remaining time.Duration
	// ConfirmedAt is when MarkNotified was called for this episode.
	ConfirmedAt time.Time
}

// Monitor tracks one target count. The zero value is not usable; use New.
type Monitor struct {
	now       func() time.Time
	rng       *rand.Rand
	settleMin time.Duration
	settleMax time.Duration

	target   int
	count    int
	maxCount int

	reached     bool
	reachedAt   time.Time
	settle      time.Duration
	notified    bool
	confirmedAt time.Time
}

// Option adjusts a Monitor at construction. The knobs exist so tests can
// pin the clock and the settle draw.
type Option func(*Monitor)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithRand replaces the random source used for the settle draw.
func WithRand(rng *rand.Rand) Option {
	return func(m *Monitor) { m.rng = rng }
}

// WithSettleRange changes the settle window bounds. min == max pins the
// window to a fixed value.
func WithSettleRange(min, max time.Duration) Option {
	return func(m *Monitor) {
		m.settleMin = min
		m.settleMax = max
	}
}

// New returns a monitor with the target disabled.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		settleMin: defaultSettleMin,
		settleMax: defaultSettleMax,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTarget configures the target count. Zero (or negative, clamped to
// zero) disables the feature. Any in-progress episode is abandoned.
func (m *Monitor) SetTarget(n int) {
	if n < 0 {
		n = 0
	}
	m.target = n
	m.clearEpisode()
}

// Target returns the configured target count.
func (m *Monitor) Target() int {
	return m.target
}

// Observe feeds one per-frame count and reports whether the target has
// been held for the full settle window. A true return is a demand on the
// caller: act on it and call MarkNotified before the next Observe,
// otherwise the same episode reports true again.
func (m *Monitor) Observe(count int) bool {
	m.count = count
	if count > m.maxCount {
		m.maxCount = count
	}

	if m.target == 0 {
		m.clearEpisode()
		return false
	}

	if count != m.target {
		// Divergence abandons the episode; the next equality starts a
		// fresh settle window with a fresh draw.
		m.clearEpisode()
		return false
	}

	if !m.reached {
		m.reached = true
		m.reachedAt = m.now()
		m.settle = m.drawSettle()
		m.notified = false
		m.confirmedAt = time.Time{}
		return false
	}

	if m.notified {
		return false
	}

	return m.now().Sub(m.reachedAt) >= m.settle
}

// MarkNotified acknowledges a true return from Observe. It records the
// confirmation time shown in the overlay and arms the episode against
// re-firing.
func (m *Monitor) MarkNotified() {
	if !m.reached {
		return
	}
	m.notified = true
	m.confirmedAt = m.now()
}

// Reset clears all transient state without touching the configured
// target. Used when the capture session restarts.
func (m *Monitor) Reset() {
	m.count = 0
	m.maxCount = 0
	m.clearEpisode()
}

// Status returns a snapshot for display.
func (m *Monitor) Status() Status {
	st := Status{
		Target:      m.target,
		Count:       m.count,
		MaxCount:    m.maxCount,
		Reached:     m.reached,
		Notified:    m.notified,
		Settle:      m.settle,
		ConfirmedAt: m.confirmedAt,
	}
	if m.reached && !m.notified {
		if remaining := m.settle - m.now().Sub(m.reachedAt); remaining > 0 {
			st.Remaining = remaining
		}
	}
	return st
}

func (m *Monitor) clearEpisode() {
	m.reached = false
	m.reachedAt = time.Time{}
	m.settle = 0
	m.notified = false
	m.confirmedAt = time.Time{}
}

// drawSettle picks the window for a new episode, uniform over
// [settleMin, settleMax). Drawn once per episode and held fixed.
func (m *Monitor) drawSettle() time.Duration {
	if m.settleMax <= m.settleMin {
		return m.settleMin
	}
	spread := m.settleMax - m.settleMin
	return m.settleMin + time.Duration(m.rng.Float64()*float64(spread))
}
