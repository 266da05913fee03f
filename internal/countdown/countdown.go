// Package countdown runs a single drift-correcting countdown.
//
// Remaining time is recomputed from absolute timestamps on every tick
// (remaining = initial - (now - start), clamped at zero), so a late or
// dropped tick never accumulates error. One ticker and one goroutine are held
// while running and both are released on every exit path.
package countdown

import (
	"context"
	"sync"
	"time"

	"countdown/internal/clock"
	"countdown/pkg/duration"
	"countdown/pkg/logx"
)

// State is the lifecycle state of a Countdown.
type State int

const (
	Idle State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

const DefaultPeriod = time.Second

// Snapshot is a consistent view of a countdown.
type Snapshot struct {
	State     State
	Remaining time.Duration
	Duration  duration.Structured
	Target    time.Time
	At        time.Time // clock reading the snapshot was computed from
	Tick      uint64    // ticks observed since Start
}

type Options struct {
	Clock  clock.Clock
	Period time.Duration
	Logger logx.Logger

	// OnTick is called from the tick goroutine after every state update,
	// including the final zero tick. It must not block for long.
	OnTick func(Snapshot)
}

// Countdown is safe for concurrent use.
type Countdown struct {
	res    duration.Resolution
	clk    clock.Clock
	period time.Duration
	log    logx.Logger
	onTick func(Snapshot)

	mu        sync.Mutex
	state     State
	remaining time.Duration
	start     time.Time
	at        time.Time
	tick      uint64
	started   bool
	stopCh    chan struct{}
	done      chan struct{}
	doneOnce  sync.Once
	wg        sync.WaitGroup
}

// New builds an idle countdown for res. Nothing runs until Start.
func New(res duration.Resolution, opts Options) *Countdown {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	initial := res.Initial
	if initial < 0 {
		initial = 0
	}
	return &Countdown{
		res:       res,
		clk:       opts.Clock,
		period:    opts.Period,
		log:       log.With(logx.String("comp", "countdown")),
		onTick:    opts.OnTick,
		state:     Idle,
		remaining: initial,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins ticking. It is idempotent: only the first call has effect.
//
// A resolution whose initial remaining time is zero or negative never
// starts: the countdown stays Idle with zero remaining and Done is closed
// without a ticker ever being registered.
func (c *Countdown) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true

	if c.res.Initial <= 0 {
		c.remaining = 0
		c.at = c.clk.Now()
		c.mu.Unlock()
		c.log.Debug("countdown already elapsed", logx.Time("target", c.res.Target))
		c.closeDone()
		return
	}

	c.state = Running
	c.start = c.clk.Now()
	c.at = c.start
	t := c.clk.NewTicker(c.period)
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Debug("countdown started",
		logx.Time("target", c.res.Target),
		logx.Duration("initial", c.res.Initial),
		logx.Duration("period", c.period),
	)
	go c.run(ctx, t)
}

func (c *Countdown) run(ctx context.Context, t *clock.Ticker) {
	defer c.wg.Done()
	defer t.Stop()
	defer c.closeDone()

	for {
		select {
		case <-ctx.Done():
			c.halt()
			return
		case <-c.stopCh:
			c.halt()
			return
		case <-t.C:
			snap, finished := c.step()
			if c.onTick != nil {
				c.onTick(snap)
			}
			if finished {
				c.log.Debug("countdown completed", logx.Uint64("ticks", snap.Tick))
				return
			}
		}
	}
}

// step applies one tick. The clock is read exactly once.
func (c *Countdown) step() (Snapshot, bool) {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.res.Initial - now.Sub(c.start)
	if remaining < 0 {
		remaining = 0
	}
	// A clock stepping backwards must not raise the remaining time.
	if remaining > c.remaining {
		remaining = c.remaining
	}
	c.remaining = remaining
	c.at = now
	c.tick++
	if remaining == 0 {
		c.state = Completed
	}
	return c.snapshotLocked(), remaining == 0
}

func (c *Countdown) halt() {
	c.mu.Lock()
	if c.state == Running {
		c.state = Idle
	}
	c.mu.Unlock()
}

// Stop cancels the countdown and waits for the tick goroutine to exit.
// Safe to call more than once and before Start; Done is closed afterwards.
func (c *Countdown) Stop() {
	c.mu.Lock()
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Wait()
	c.closeDone()
}

func (c *Countdown) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Done is closed once the countdown completes, is stopped, or its context is
// cancelled. Already-elapsed inputs close it on Start.
func (c *Countdown) Done() <-chan struct{} { return c.done }

func (c *Countdown) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Countdown) snapshotLocked() Snapshot {
	return Snapshot{
		State:     c.state,
		Remaining: c.remaining,
		Duration:  duration.DecomposeDuration(c.remaining),
		Target:    c.res.Target,
		At:        c.at,
		Tick:      c.tick,
	}
}

// Resolution returns the input the countdown was built from.
func (c *Countdown) Resolution() duration.Resolution { return c.res }
