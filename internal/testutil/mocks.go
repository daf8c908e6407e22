package testutil

import (
	"sync"
	"time"
)

// ManualTicker is a ticker whose ticks are fired explicitly by the test.
// It satisfies milk.Ticker.
type ManualTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	done    chan struct{}
	stopped bool
	now     time.Time
}

// NewManualTicker creates a ManualTicker starting at the given time.
// If zero time is provided, uses current time.
func NewManualTicker(start time.Time) *ManualTicker {
	if start.IsZero() {
		start = time.Now()
	}
	return &ManualTicker{
		ch:   make(chan time.Time),
		done: make(chan struct{}),
		now:  start,
	}
}

// C returns the tick channel.
func (m *ManualTicker) C() <-chan time.Time {
	return m.ch
}

// Tick advances the ticker clock by d and delivers one tick. It blocks
// until the receiver takes it, so a true result means the tick was consumed.
// Tick returns false if the ticker is stopped before delivery.
func (m *ManualTicker) Tick(d time.Duration) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	m.now = m.now.Add(d)
	now := m.now
	m.mu.Unlock()

	select {
	case m.ch <- now:
		return true
	case <-m.done:
		return false
	}
}

// Stop marks the ticker as stopped and releases pending Tick calls.
func (m *ManualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.done)
	}
}

// Stopped reports whether Stop has been called.
func (m *ManualTicker) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
