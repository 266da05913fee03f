package clock

import (
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves on Advance.
// It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline order,
// with no lock held. Do not call Advance from a callback.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	interval time.Duration // > 0 for tickers
	ch       chan time.Time
	fn       func()
	stopped  bool
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ch := make(chan time.Time, 1)
	w := &waiter{interval: d, ch: ch}

	c.mu.Lock()
	w.deadline = c.now.Add(d)
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()
	c.mu.Unlock()

	return &Ticker{C: ch, stop: func() { c.stopWaiter(w) }}
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	w := &waiter{fn: f}

	c.mu.Lock()
	if d <= 0 {
		c.mu.Unlock()
		f()
		return &Timer{stop: func() bool { return false }}
	}
	w.deadline = c.now.Add(d)
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()
	c.mu.Unlock()

	return &Timer{stop: func() bool { return c.stopWaiter(w) }}
}

func (c *FakeClock) stopWaiter(w *waiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.stopped {
		return false
	}
	w.stopped = true
	c.removeLocked(w)
	c.changed.Broadcast()
	return true
}

func (c *FakeClock) removeLocked(w *waiter) {
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Advance moves time forward by d, firing every waiter whose deadline falls
// inside the window. Tickers that are due several times fire once per
// interval, subject to the capacity-1 drop rule.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		w := c.nextDueLocked(target)
		if w == nil {
			break
		}
		c.now = w.deadline
		if w.interval > 0 {
			select {
			case w.ch <- c.now:
			default:
			}
			w.deadline = w.deadline.Add(w.interval)
			continue
		}
		w.stopped = true
		c.removeLocked(w)
		fn := w.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *FakeClock) nextDueLocked(target time.Time) *waiter {
	var next *waiter
	for _, w := range c.waiters {
		if w.stopped || w.deadline.After(target) {
			continue
		}
		if next == nil || w.deadline.Before(next.deadline) {
			next = w
		}
	}
	return next
}

// WaitForTimers blocks until at least n tickers or timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of active tickers and timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
