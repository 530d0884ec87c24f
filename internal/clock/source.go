package clock

import (
	"sync"
	"time"
)

// Source reports local time in seconds.
type Source interface {
	Now() float64
}

// Real measures seconds elapsed since it was created.
type Real struct {
	start time.Time
}

// NewReal starts a real clock at zero.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

// Now returns the seconds elapsed since NewReal.
func (r *Real) Now() float64 {
	return time.Since(r.start).Seconds()
}

// Manual is a clock advanced explicitly, used by simulations and tests.
type Manual struct {
	mu  sync.Mutex
	now float64
}

// NewManual starts a manual clock at t.
func NewManual(t float64) *Manual {
	return &Manual{now: t}
}

// Now returns the current time.
func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by dt and returns the new time.
func (m *Manual) Advance(dt float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += dt
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
