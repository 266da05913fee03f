package countdown

import (
	"context"
	"testing"
	"time"

	"countdown/internal/clock"
	"countdown/pkg/duration"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	clk   *clock.FakeClock
	cd    *Countdown
	ticks chan Snapshot
}

func newHarness(t *testing.T, spec duration.Spec, period time.Duration) *harness {
	t.Helper()
	clk := clock.Fake(epoch)
	res, err := duration.Resolve(spec, clk.Now())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	h := &harness{clk: clk, ticks: make(chan Snapshot, 1024)}
	h.cd = New(res, Options{
		Clock:  clk,
		Period: period,
		OnTick: func(s Snapshot) { h.ticks <- s },
	})
	return h
}

// advance moves the clock one period and waits for the resulting tick.
func (h *harness) advance(t *testing.T, d time.Duration) Snapshot {
	t.Helper()
	h.clk.Advance(d)
	select {
	case s := <-h.ticks:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tick")
		return Snapshot{}
	}
}

func TestScenarioQuantity(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Quantity{Amount: 5, Unit: duration.Minute}, time.Second)
	if got := h.cd.Resolution().Initial; got != 5*time.Minute {
		t.Fatalf("Initial = %v, want 5m", got)
	}
	h.cd.Start(context.Background())
	defer h.cd.Stop()
	h.clk.WaitForTimers(1)

	s := h.advance(t, time.Second)
	if s.Remaining <= 298*time.Second || s.Remaining > 299*time.Second {
		t.Fatalf("Remaining = %v, want in (298s, 299s]", s.Remaining)
	}
	if s.State != Running {
		t.Fatalf("State = %v, want running", s.State)
	}
	want := duration.Structured{Minutes: 4, Seconds: 59}
	if s.Duration != want {
		t.Fatalf("Duration = %+v, want %+v", s.Duration, want)
	}
}

func TestScenarioTarget(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Target{At: epoch.Add(180 * time.Second)}, time.Second)
	h.cd.Start(context.Background())
	defer h.cd.Stop()
	h.clk.WaitForTimers(1)

	h.advance(t, time.Second)
	s := h.advance(t, time.Second)
	if s.Remaining <= 177*time.Second || s.Remaining > 178*time.Second {
		t.Fatalf("Remaining = %v, want in (177s, 178s]", s.Remaining)
	}
	if s.Tick != 2 {
		t.Fatalf("Tick = %d, want 2", s.Tick)
	}
	if !s.Target.Equal(epoch.Add(180 * time.Second)) {
		t.Fatalf("Target = %v", s.Target)
	}
}

func TestMonotonicAndTerminates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		initial time.Duration
		period  time.Duration
	}{
		{"exact multiple", 3 * time.Second, time.Second},
		{"fractional remainder", 2500 * time.Millisecond, time.Second},
		{"sub-period", 300 * time.Millisecond, time.Second},
		{"fast period", time.Second, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, duration.Quantity{Amount: float64(tt.initial.Milliseconds()), Unit: duration.Millisecond}, tt.period)
			h.cd.Start(context.Background())
			defer h.cd.Stop()
			h.clk.WaitForTimers(1)

			limit := int((tt.initial+tt.period-1)/tt.period) + 1
			prev := tt.initial
			ticks := 0
			for {
				s := h.advance(t, tt.period)
				ticks++
				if s.Remaining > prev {
					t.Fatalf("tick %d: remaining rose from %v to %v", ticks, prev, s.Remaining)
				}
				prev = s.Remaining
				if s.Remaining == 0 {
					if s.State != Completed {
						t.Fatalf("State = %v at zero, want completed", s.State)
					}
					break
				}
				if ticks > limit {
					t.Fatalf("no completion within %d ticks", limit)
				}
			}

			select {
			case <-h.cd.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("Done not closed after completion")
			}
			h.cd.Stop()
			if n := h.clk.PendingCount(); n != 0 {
				t.Fatalf("PendingCount = %d after completion, want 0", n)
			}
			h.clk.Advance(10 * tt.period)
			select {
			case s := <-h.ticks:
				t.Fatalf("tick after completion: %+v", s)
			default:
			}
		})
	}
}

func TestDriftCorrectionAfterLateTick(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Quantity{Amount: 10, Unit: duration.Second}, time.Second)
	h.cd.Start(context.Background())
	defer h.cd.Stop()
	h.clk.WaitForTimers(1)

	// Three periods elapse at once; the ticker only delivers one tick but
	// remaining reflects the full elapsed time.
	s := h.advance(t, 3*time.Second)
	if s.Remaining != 7*time.Second {
		t.Fatalf("Remaining = %v, want 7s", s.Remaining)
	}
	if s.Tick != 1 {
		t.Fatalf("Tick = %d, want 1", s.Tick)
	}
}

func TestAlreadyElapsed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Target{At: epoch.Add(-time.Minute)}, time.Second)
	h.cd.Start(context.Background())

	select {
	case <-h.cd.Done():
	default:
		t.Fatal("Done should be closed for an elapsed target")
	}
	s := h.cd.Snapshot()
	if s.Remaining != 0 || s.State != Idle {
		t.Fatalf("snapshot = %+v, want idle with zero remaining", s)
	}
	if n := h.clk.PendingCount(); n != 0 {
		t.Fatalf("PendingCount = %d, want 0", n)
	}
	if !s.Duration.IsZero() {
		t.Fatalf("Duration = %+v, want zero", s.Duration)
	}
}

func TestStopReleasesTicker(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Quantity{Amount: 1, Unit: duration.Hour}, time.Second)
	h.cd.Start(context.Background())
	h.clk.WaitForTimers(1)
	h.advance(t, time.Second)

	h.cd.Stop()
	if n := h.clk.PendingCount(); n != 0 {
		t.Fatalf("PendingCount = %d after Stop, want 0", n)
	}
	select {
	case <-h.cd.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	s := h.cd.Snapshot()
	if s.State != Idle {
		t.Fatalf("State = %v after Stop, want idle", s.State)
	}
	if s.Remaining != time.Hour-time.Second {
		t.Fatalf("Remaining = %v, want 59m59s", s.Remaining)
	}
	h.cd.Stop()
}

func TestContextCancelStops(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Quantity{Amount: 1, Unit: duration.Minute}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	h.cd.Start(ctx)
	h.clk.WaitForTimers(1)
	cancel()

	select {
	case <-h.cd.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after ctx cancel")
	}
	h.cd.Stop()
	if n := h.clk.PendingCount(); n != 0 {
		t.Fatalf("PendingCount = %d, want 0", n)
	}
	if s := h.cd.Snapshot(); s.State != Idle {
		t.Fatalf("State = %v, want idle", s.State)
	}
}

func TestStartIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Quantity{Amount: 5, Unit: duration.Second}, time.Second)
	h.cd.Start(context.Background())
	h.cd.Start(context.Background())
	defer h.cd.Stop()
	h.clk.WaitForTimers(1)
	if n := h.clk.PendingCount(); n != 1 {
		t.Fatalf("PendingCount = %d, want 1", n)
	}
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, duration.Quantity{Amount: 5, Unit: duration.Second}, time.Second)
	h.cd.Stop()
	h.cd.Start(context.Background())
	if n := h.clk.PendingCount(); n != 0 {
		t.Fatalf("PendingCount = %d, want 0", n)
	}
	if s := h.cd.Snapshot(); s.State != Idle {
		t.Fatalf("State = %v, want idle", s.State)
	}
}
