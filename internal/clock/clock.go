// Package clock abstracts wall-clock reads and tickers so countdowns can be
// driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake(start) and move time with
// Advance; WaitForTimers blocks until a goroutine has registered its ticker,
// which removes the race between "goroutine started" and "time advanced".
package clock

import "time"

// Clock is the time source used by countdowns and the registry.
type Clock interface {
	Now() time.Time

	// NewTicker returns a ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// AfterFunc calls f in its own goroutine (real) or synchronously during
	// Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Ticker delivers ticks on C (capacity 1; slow consumers drop ticks).
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop prevents the call. Returns false if it already ran or was stopped.
func (t *Timer) Stop() bool { return t.stop() }

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
