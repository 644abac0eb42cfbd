package banana

import "time"

// CancelFunc stops a previously scheduled callback; calling it after
// the callback has already fired is a no-op.
type CancelFunc func()

// Scheduler is injected into every Connection instead of reaching for
// a global reactor or timer singleton, so that keepalive/disconnect
// behavior can be driven deterministically in tests (spec.md design
// note §9, "Global reactor and timer singletons").
type Scheduler interface {
	Now() time.Time
	Schedule(d time.Duration, cb func()) CancelFunc
}

// realScheduler is the production Scheduler, backed by time.AfterFunc.
type realScheduler struct{}

// RealScheduler returns the wall-clock Scheduler implementation.
func RealScheduler() Scheduler { return realScheduler{} }

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) Schedule(d time.Duration, cb func()) CancelFunc {
	t := time.AfterFunc(d, cb)
	return func() { t.Stop() }
}

// ManualClock is a Scheduler for tests: time only advances when
// Advance is called, and timers fire synchronously at that point, in
// the order their deadlines expire.
type ManualClock struct {
	now    time.Time
	timers []*manualTimer
	nextID uint64
}

type manualTimer struct {
	id       uint64
	deadline time.Time
	cb       func()
	fired    bool
	canceled bool
}

// NewManualClock returns a ManualClock starting at t0.
func NewManualClock(t0 time.Time) *ManualClock {
	return &ManualClock{now: t0}
}

func (c *ManualClock) Now() time.Time { return c.now }

func (c *ManualClock) Schedule(d time.Duration, cb func()) CancelFunc {
	t := &manualTimer{id: c.nextID, deadline: c.now.Add(d), cb: cb}
	c.nextID++
	c.timers = append(c.timers, t)
	return func() { t.canceled = true }
}

// Advance moves the clock forward by d, firing (in deadline order) any
// timer whose deadline has been reached.
func (c *ManualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
	for {
		var due *manualTimer
		for _, t := range c.timers {
			if t.fired || t.canceled {
				continue
			}
			if !t.deadline.After(c.now) {
				if due == nil || t.deadline.Before(due.deadline) {
					due = t
				}
			}
		}
		if due == nil {
			return
		}
		due.fired = true
		due.cb()
	}
}
