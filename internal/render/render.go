// Package render draws countdown progress on a terminal.
//
// It consumes countdown.* events from the bus and prints either one
// "name: remaining" line per tick or one mpb progress bar per run.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"countdown/internal/eventbus"
	"countdown/internal/registry"
	"countdown/pkg/duration"
	"countdown/pkg/durfmt"
	"countdown/pkg/logx"
)

type Mode string

const (
	ModeLine Mode = "line"
	ModeBar  Mode = "bar"
	ModeNone Mode = "none"
)

const DefaultBarWidth = 64

// ParseMode accepts line, bar or none (any case); empty means line.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeLine:
		return ModeLine, nil
	case ModeBar:
		return ModeBar, nil
	case ModeNone:
		return ModeNone, nil
	default:
		return "", fmt.Errorf("invalid render mode %q (use line, bar or none)", raw)
	}
}

type Options struct {
	Mode     Mode
	Format   durfmt.Options
	BarWidth int
	Out      io.Writer
	Logger   logx.Logger
}

type Renderer struct {
	mu     sync.Mutex
	mode   Mode
	format durfmt.Options
	out    io.Writer
	log    logx.Logger

	width    int
	progress *mpb.Progress
	bars     map[string]*runBar // by run ID
	closed   bool
}

type runBar struct {
	bar   *mpb.Bar
	total int64
	text  atomic.Value // string
}

func New(opts Options) *Renderer {
	if opts.Mode == "" {
		opts.Mode = ModeLine
	}
	if opts.BarWidth <= 0 {
		opts.BarWidth = DefaultBarWidth
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	return &Renderer{
		mode:   opts.Mode,
		format: opts.Format,
		out:    opts.Out,
		log:    opts.Logger.With(logx.String("comp", "render")),
		width:  opts.BarWidth,
		bars:   map[string]*runBar{},
	}
}

// SetFormat swaps the duration format used from the next event on.
func (r *Renderer) SetFormat(f durfmt.Options) {
	r.mu.Lock()
	r.format = f
	r.mu.Unlock()
}

func (r *Renderer) Mode() Mode { return r.mode }

// Run renders events until ctx is done or events is closed, then releases
// any open bars. Events already queued when ctx is done are still rendered,
// so a final tick published just before shutdown is not lost. Subscribe
// before the registry starts so no started or elapsed events are missed.
func (r *Renderer) Run(ctx context.Context, events <-chan eventbus.Event) {
	defer r.Close()
	for {
		select {
		case <-ctx.Done():
			r.drain(events)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			r.Handle(e)
		}
	}
}

func (r *Renderer) drain(events <-chan eventbus.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			r.Handle(e)
		default:
			return
		}
	}
}

// Handle renders a single event. Events that do not carry a countdown
// payload are ignored.
func (r *Renderer) Handle(e eventbus.Event) {
	ev, ok := e.Data.(registry.Event)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	switch r.mode {
	case ModeLine:
		r.line(e.Type, ev)
	case ModeBar:
		r.bar(e.Type, ev)
	}
}

func (r *Renderer) line(typ string, ev registry.Event) {
	var msg string
	switch typ {
	case eventbus.CountdownTick:
		msg = durfmt.Format(ev.Duration, r.format)
	case eventbus.CountdownCompleted:
		// An elapsed input never ticks; show its zero once.
		if !ev.Elapsed {
			return
		}
		msg = durfmt.Format(duration.Structured{}, r.format)
	case eventbus.CountdownStopped:
		msg = "stopped"
		if ev.Error != "" {
			msg += " (" + ev.Error + ")"
		}
	default:
		return
	}
	if _, err := fmt.Fprintf(r.out, "%s: %s\n", ev.Name, msg); err != nil {
		r.log.Debug("render write failed", logx.Err(err))
	}
}

func (r *Renderer) bar(typ string, ev registry.Event) {
	switch typ {
	case eventbus.CountdownStarted, eventbus.CountdownTick:
		rb := r.barFor(ev)
		if rb == nil {
			return
		}
		rb.text.Store(durfmt.Format(ev.Duration, r.format))
		done := rb.total - ev.Remaining.Milliseconds()
		if done < 0 {
			done = 0
		}
		rb.bar.SetCurrent(done)
	case eventbus.CountdownCompleted:
		rb, ok := r.bars[ev.RunID]
		if !ok {
			return
		}
		delete(r.bars, ev.RunID)
		rb.text.Store(durfmt.Format(duration.Structured{}, r.format))
		rb.bar.SetCurrent(rb.total)
		rb.bar.SetTotal(-1, true)
	case eventbus.CountdownStopped:
		rb, ok := r.bars[ev.RunID]
		if !ok {
			return
		}
		delete(r.bars, ev.RunID)
		rb.bar.Abort(false)
	}
}

func (r *Renderer) barFor(ev registry.Event) *runBar {
	if rb, ok := r.bars[ev.RunID]; ok {
		return rb
	}
	total := ev.Initial.Milliseconds()
	if total <= 0 {
		return nil
	}
	if r.progress == nil {
		r.progress = mpb.New(mpb.WithOutput(r.out), mpb.WithWidth(r.width))
	}
	rb := &runBar{total: total}
	rb.text.Store(durfmt.Format(ev.Duration, r.format))

	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
	name := ev.Name
	rb.bar = r.progress.New(total,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.Any(func(decor.Statistics) string {
					s, _ := rb.text.Load().(string)
					return s
				}, decor.WC{W: 4}), "done",
			),
		),
	)
	r.bars[ev.RunID] = rb
	return rb
}

// Close aborts open bars and waits for the progress container to flush.
// Close is idempotent.
func (r *Renderer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id, rb := range r.bars {
		rb.bar.Abort(false)
		delete(r.bars, id)
	}
	p := r.progress
	r.mu.Unlock()
	if p != nil {
		p.Wait()
	}
}
