package render

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"countdown/internal/eventbus"
	"countdown/internal/registry"
	"countdown/pkg/duration"
	"countdown/pkg/durfmt"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func tick(name string, remaining time.Duration) eventbus.Event {
	return eventbus.Event{Type: eventbus.CountdownTick, Data: registry.Event{
		Name:      name,
		RunID:     name + "-run",
		Initial:   5 * time.Minute,
		Remaining: remaining,
		Duration:  duration.DecomposeDuration(remaining),
	}}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeLine, true},
		{"LINE", ModeLine, true},
		{" bar ", ModeBar, true},
		{"none", ModeNone, true},
		{"spinner", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseMode(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestLineModeTicks(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := New(Options{Mode: ModeLine, Out: &out, Format: durfmt.Options{Separator: " "}})

	r.Handle(tick("tea", 4*time.Minute+30*time.Second))
	r.Handle(tick("tea", time.Second))
	r.Handle(eventbus.Event{Type: eventbus.CountdownStarted, Data: registry.Event{Name: "tea"}})
	r.Handle(eventbus.Event{Type: eventbus.CountdownTick, Data: "not a countdown"})

	want := "tea: 4 minutes 30 seconds\ntea: 1 second\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestLineModeCompletionAndStop(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := New(Options{Mode: ModeLine, Out: &out, Format: durfmt.Options{Style: durfmt.StyleShort}})

	r.Handle(eventbus.Event{Type: eventbus.CountdownCompleted, Data: registry.Event{Name: "a"}})
	r.Handle(eventbus.Event{Type: eventbus.CountdownCompleted, Data: registry.Event{Name: "b", Elapsed: true}})
	r.Handle(eventbus.Event{Type: eventbus.CountdownStopped, Data: registry.Event{Name: "c", Error: "replaced"}})

	want := "b: 0s\nc: stopped (replaced)\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestSetFormat(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := New(Options{Out: &out})
	r.SetFormat(durfmt.Options{Style: durfmt.StyleShort, MaxUnits: 1})
	r.Handle(tick("x", 90*time.Minute))
	if out.String() != "x: 1h\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestBarModeLifecycle(t *testing.T) {
	t.Parallel()
	var out syncBuffer
	r := New(Options{Mode: ModeBar, Out: &out, BarWidth: 20})

	r.Handle(tick("tea", 4*time.Minute))
	r.Handle(tick("tea", 2*time.Minute))
	r.Handle(tick("egg", time.Minute))
	r.mu.Lock()
	if len(r.bars) != 2 {
		r.mu.Unlock()
		t.Fatalf("bars = %d, want 2", len(r.bars))
	}
	r.mu.Unlock()

	r.Handle(eventbus.Event{Type: eventbus.CountdownCompleted, Data: registry.Event{Name: "tea", RunID: "tea-run"}})
	r.Handle(eventbus.Event{Type: eventbus.CountdownStopped, Data: registry.Event{Name: "egg", RunID: "egg-run"}})
	r.mu.Lock()
	if len(r.bars) != 0 {
		r.mu.Unlock()
		t.Fatalf("bars = %d after completion, want 0", len(r.bars))
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.Close()
		r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	var out syncBuffer
	bus := eventbus.New()
	r := New(Options{Out: &out})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	events, unsub := bus.Subscribe(64)
	defer unsub()
	go func() {
		r.Run(ctx, events)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !strings.Contains(out.String(), "tea: ") {
		bus.Publish(tick("tea", time.Minute))
		select {
		case <-deadline:
			t.Fatal("tick never rendered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunFlushesQueuedEventsOnCancel(t *testing.T) {
	t.Parallel()
	var out syncBuffer
	r := New(Options{Out: &out, Format: durfmt.Options{Separator: " "}})

	events := make(chan eventbus.Event, 4)
	events <- tick("tea", time.Second)
	events <- tick("tea", 0)
	events <- eventbus.Event{Type: eventbus.CountdownCompleted, Data: registry.Event{Name: "tea", RunID: "tea-run"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx, events)

	want := "tea: 1 second\ntea: 0 seconds\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
	r.Handle(tick("tea", time.Minute))
	if out.String() != want {
		t.Fatalf("renderer wrote after Run returned: %q", out.String())
	}
}
