// Package registry runs named countdowns.
//
// Entries are upserted by name: an unchanged entry is a no-op, a changed one
// stops the old countdown before the new one starts. Resolved targets are
// persisted (when a store is configured) keyed by name and input
// fingerprint, so relative inputs keep their original target across
// restarts. Cron entries marked repeat re-arm for the next occurrence when
// they complete.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"countdown/internal/clock"
	"countdown/internal/countdown"
	"countdown/internal/eventbus"
	"countdown/internal/storage"
	"countdown/pkg/duration"
	"countdown/pkg/logx"
)

const storeTimeout = 250 * time.Millisecond

type Registry struct {
	mu sync.Mutex

	clk    clock.Clock
	period time.Duration
	loc    *time.Location
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store
	parser cron.Parser

	ctx    context.Context // nil until Start
	cancel context.CancelFunc
	items  map[string]*item
	wg     sync.WaitGroup
}

type item struct {
	entry  Entry
	fp     string
	period time.Duration
	run    run
	cd     *countdown.Countdown
}

// run is one armed countdown of an entry. Captured by value by tick
// callbacks so a re-arm never races with a late tick.
type run struct {
	name   string
	id     string
	res    duration.Resolution
	notify bool
}

func New(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Period <= 0 {
		opts.Period = countdown.DefaultPeriod
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	return &Registry{
		clk:    opts.Clock,
		period: opts.Period,
		loc:    opts.Location,
		log:    opts.Logger.With(logx.String("comp", "registry")),
		bus:    opts.Bus,
		store:  opts.Store,
		parser: newParser(),
		items:  map[string]*item{},
	}
}

// Start launches every registered entry. Entries upserted afterwards start
// immediately. Start is idempotent.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	for _, name := range r.namesLocked() {
		r.launchLocked(r.items[name])
	}
	r.log.Debug("registry started", logx.Int("countdowns", len(r.items)))
}

// Stop halts every countdown and waits for completion watchers to exit.
// Persisted targets are kept.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	for _, name := range r.namesLocked() {
		r.haltLocked(r.items[name], "shutdown")
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Configure changes the tick period and timezone. Existing countdowns pick
// the change up on their next Upsert or Sync.
func (r *Registry) Configure(period time.Duration, loc *time.Location) {
	if period <= 0 {
		period = countdown.DefaultPeriod
	}
	if loc == nil {
		loc = time.Local
	}
	r.mu.Lock()
	r.period, r.loc = period, loc
	r.mu.Unlock()
}

// Upsert registers or replaces the countdown named e.Name. Invalid input is
// rejected (a countdown.rejected event is published) and any countdown
// already running under that name is left untouched.
func (r *Registry) Upsert(e Entry) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return fmt.Errorf("%w: countdown name is required", duration.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	fp := e.Input.Fingerprint(r.loc)
	old := r.items[e.Name]
	if old != nil && old.fp == fp && old.entry.Repeat == e.Repeat && old.period == r.period {
		old.entry.Notify = e.Notify
		old.run.notify = e.Notify
		return nil
	}

	rn, err := r.resolveLocked(e, fp, old, now)
	if err != nil {
		r.log.Warn("countdown rejected", logx.String("name", e.Name), logx.String("input", fp), logx.Err(err))
		r.bus.Publish(eventbus.Event{
			Type: eventbus.CountdownRejected,
			Time: now,
			Data: Event{Name: e.Name, Error: err.Error()},
		})
		return fmt.Errorf("countdown %q: %w", e.Name, err)
	}

	if old != nil {
		r.haltLocked(old, "replaced")
	}
	it := &item{entry: e, fp: fp, period: r.period, run: rn}
	r.items[e.Name] = it
	if r.ctx != nil {
		r.launchLocked(it)
	}
	return nil
}

// Remove stops and forgets the named countdown, including its persisted
// target. It reports whether the name was registered.
func (r *Registry) Remove(name string) bool {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[name]
	if !ok {
		return false
	}
	delete(r.items, name)
	r.haltLocked(it, "removed")
	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := r.store.DeleteTarget(ctx, name); err != nil {
			r.log.Warn("delete target failed", logx.String("name", name), logx.Err(err))
		}
		cancel()
	}
	return true
}

// Sync makes the registry match entries: each entry is upserted and
// countdowns missing from entries are removed. Rejected entries are
// reported together; valid ones are still applied.
func (r *Registry) Sync(entries []Entry) error {
	want := make(map[string]struct{}, len(entries))
	var errs []error
	for _, e := range entries {
		want[strings.TrimSpace(e.Name)] = struct{}{}
		if err := r.Upsert(e); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range r.Names() {
		if _, ok := want[name]; !ok {
			r.Remove(name)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the status of every countdown, sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.items))
	for _, name := range r.namesLocked() {
		it := r.items[name]
		st := Status{Name: name, RunID: it.run.id, Fingerprint: it.fp, Repeat: it.entry.Repeat}
		if it.cd != nil {
			st.Snapshot = it.cd.Snapshot()
		} else {
			st.Snapshot = countdown.Snapshot{State: countdown.Idle, Target: it.run.res.Target}
		}
		out = append(out, st)
	}
	return out
}

// resolveLocked picks the target for e. In order: the target of the
// countdown being replaced when only the period changed, a persisted target
// with the same fingerprint, or a fresh resolution.
func (r *Registry) resolveLocked(e Entry, fp string, old *item, now time.Time) (run, error) {
	if old != nil && old.fp == fp {
		return r.rebase(old.run, e, now)
	}

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		rec, ok, err := r.store.GetTarget(ctx, e.Name)
		cancel()
		switch {
		case err != nil:
			r.log.Warn("load target failed", logx.String("name", e.Name), logx.Err(err))
		case ok && rec.Fingerprint == fp:
			// A passed repeating cron target is re-resolved instead of resumed.
			if !(e.Repeat && e.Input.IsCron() && !rec.Target.After(now)) {
				id := rec.RunID
				if id == "" {
					id = uuid.NewString()
				}
				r.log.Debug("resuming persisted target", logx.String("name", e.Name), logx.Time("target", rec.Target))
				return r.rebase(run{name: e.Name, id: id, res: duration.Resolution{Target: rec.Target}}, e, now)
			}
		}
	}

	return r.freshLocked(e, fp, now)
}

func (r *Registry) rebase(prev run, e Entry, now time.Time) (run, error) {
	res, err := duration.ResolveAt(prev.res.Target, now)
	if err != nil {
		return run{}, err
	}
	return run{name: e.Name, id: prev.id, res: res, notify: e.Notify}, nil
}

func (r *Registry) freshLocked(e Entry, fp string, now time.Time) (run, error) {
	spec, err := e.Input.spec(r.parser, now, r.loc)
	if err != nil {
		return run{}, err
	}
	res, err := duration.Resolve(spec, now)
	if err != nil {
		return run{}, err
	}
	rn := run{name: e.Name, id: uuid.NewString(), res: res, notify: e.Notify}

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := r.store.PutTarget(ctx, storage.TargetRecord{
			Name:        e.Name,
			Fingerprint: fp,
			Target:      res.Target,
			ResolvedAt:  now,
			RunID:       rn.id,
		})
		cancel()
		if err != nil {
			r.log.Warn("persist target failed", logx.String("name", e.Name), logx.Err(err))
		}
	}
	return rn, nil
}

func (r *Registry) launchLocked(it *item) {
	rn := it.run
	cd := countdown.New(rn.res, countdown.Options{
		Clock:  r.clk,
		Period: it.period,
		Logger: r.log.With(logx.String("countdown", rn.name), logx.String("run_id", rn.id)),
		OnTick: func(s countdown.Snapshot) {
			r.bus.Publish(eventbus.Event{Type: eventbus.CountdownTick, Time: s.At, Data: rn.event(s)})
		},
	})
	it.cd = cd
	cd.Start(r.ctx)

	if rn.res.Elapsed() {
		ev := rn.event(cd.Snapshot())
		ev.Elapsed = true
		r.log.Info("countdown already elapsed", logx.String("name", rn.name), logx.Time("target", rn.res.Target))
		r.emitLocked(eventbus.CountdownCompleted, ev)
		return
	}

	r.log.Info("countdown started",
		logx.String("name", rn.name),
		logx.String("run_id", rn.id),
		logx.Time("target", rn.res.Target),
		logx.Duration("initial", rn.res.Initial),
	)
	r.emitLocked(eventbus.CountdownStarted, rn.event(cd.Snapshot()))

	r.wg.Add(1)
	go r.watch(it, cd)
}

// watch reacts to a countdown reaching zero.
func (r *Registry) watch(it *item, cd *countdown.Countdown) {
	defer r.wg.Done()
	<-cd.Done()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items[it.entry.Name] != it || it.cd != cd {
		return
	}
	snap := cd.Snapshot()
	if snap.State != countdown.Completed {
		return
	}
	r.log.Info("countdown completed", logx.String("name", it.run.name), logx.String("run_id", it.run.id))
	r.emitLocked(eventbus.CountdownCompleted, it.run.event(snap))

	if !it.entry.Repeat || !it.entry.Input.IsCron() || r.ctx.Err() != nil {
		return
	}
	rn, err := r.freshLocked(it.entry, it.fp, r.clk.Now())
	if err != nil {
		r.log.Error("countdown re-arm failed", logx.String("name", it.run.name), logx.Err(err))
		return
	}
	it.run = rn
	r.launchLocked(it)
}

// haltLocked stops the item's countdown, publishing countdown.stopped if it was
// still running.
func (r *Registry) haltLocked(it *item, reason string) {
	if it.cd == nil {
		return
	}
	wasRunning := it.cd.Snapshot().State == countdown.Running
	it.cd.Stop()
	if !wasRunning {
		return
	}
	ev := it.run.event(it.cd.Snapshot())
	ev.Error = reason
	r.log.Debug("countdown stopped", logx.String("name", it.run.name), logx.String("reason", reason))
	r.emitLocked(eventbus.CountdownStopped, ev)
}

// emitLocked publishes ev and appends it to the history store.
func (r *Registry) emitLocked(typ string, ev Event) {
	now := r.clk.Now()
	r.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := r.store.AppendHistory(ctx, storage.HistoryEntry{
		At:          now,
		Name:        ev.Name,
		RunID:       ev.RunID,
		Event:       typ,
		Target:      ev.Target,
		InitialMS:   ev.Initial.Milliseconds(),
		RemainingMS: ev.Remaining.Milliseconds(),
		Error:       ev.Error,
	})
	if err != nil {
		r.log.Debug("append history failed", logx.String("name", ev.Name), logx.Err(err))
	}
}

func (rn run) event(s countdown.Snapshot) Event {
	initial := rn.res.Initial
	if initial < 0 {
		initial = 0
	}
	return Event{
		Name:      rn.name,
		RunID:     rn.id,
		State:     s.State.String(),
		Target:    rn.res.Target,
		Initial:   initial,
		Remaining: s.Remaining,
		Duration:  s.Duration,
		Tick:      s.Tick,
		Notify:    rn.notify,
	}
}
