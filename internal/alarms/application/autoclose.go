package application

import (
	"sync"
	"time"
)

// autoCloser keeps one inactivity timer per gas type. Arming a gas
// that already has a timer replaces it, so the window restarts on
// every new breach.
type autoCloser struct {
	mu      sync.Mutex
	window  time.Duration
	fire    func(gasTypeID, alarmID int64)
	pending map[int64]*time.Timer
	stopped bool
}

func newAutoCloser(window time.Duration, fire func(gasTypeID, alarmID int64)) *autoCloser {
	return &autoCloser{
		window:  window,
		fire:    fire,
		pending: make(map[int64]*time.Timer),
	}
}

// Arm schedules the alarm to close after the inactivity window unless
// re-armed first.
func (c *autoCloser) Arm(gasTypeID, alarmID int64) {
	if c == nil || c.fire == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if timer, ok := c.pending[gasTypeID]; ok {
		timer.Stop()
	}
	// Stop does not reach a callback already in flight, so the
	// callback re-checks under the lock that its own timer is still
	// the pending one for the gas before it may close anything.
	var timer *time.Timer
	timer = time.AfterFunc(c.window, func() {
		c.mu.Lock()
		current, ok := c.pending[gasTypeID]
		if c.stopped || !ok || current != timer {
			c.mu.Unlock()
			return
		}
		delete(c.pending, gasTypeID)
		c.mu.Unlock()
		c.fire(gasTypeID, alarmID)
	})
	c.pending[gasTypeID] = timer
}

// Shutdown cancels every pending timer and rejects new ones.
func (c *autoCloser) Shutdown() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for gasTypeID, timer := range c.pending {
		timer.Stop()
		delete(c.pending, gasTypeID)
	}
}
