package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"countdown/internal/clock"
	"countdown/internal/config"
	"countdown/internal/countdown"
	"countdown/internal/eventbus"
	"countdown/internal/notifier"
	"countdown/internal/observability/debugsrv"
	"countdown/internal/registry"
	"countdown/internal/render"
	"countdown/internal/storage"
	"countdown/pkg/durfmt"
	"countdown/pkg/logx"
)

type Options struct {
	// Out receives rendered progress and stdout notifications. Nil means
	// os.Stdout.
	Out   io.Writer
	Clock clock.Clock

	// ExitWhenDone cancels the app once no countdown is running.
	ExitWhenDone bool

	// Render, when set, edits the render section of every loaded config
	// (command-line overrides).
	Render func(r *config.RenderConfig)
}

type App struct {
	opts Options

	cfgm *ConfigManager // nil when built from an in-memory config
	cfg  *Config
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	reg   *registry.Registry
	notif *notifier.Service
	rnd   *render.Renderer
	dbg   *debugsrv.Service

	renderDone chan struct{} // closed when the render loop returns

	mu         sync.RWMutex
	format     durfmt.Options
	sinkName   string
	renderMode render.Mode
}

// New loads the config file at cfgPath and wires every component. Nothing
// runs until Start.
func New(cfgPath string, opts Options) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg, opts)
}

// NewFromConfig wires an app around an in-memory config. The config is not
// watched for changes.
func NewFromConfig(cfg *Config, opts Options) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return build(nil, cfg, opts)
}

func build(cfgm *ConfigManager, cfg *Config, opts Options) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	a := &App{opts: opts, cfgm: cfgm}
	cfg = a.withOverrides(cfg)
	a.cfg = cfg

	if err := checkEntries(cfg, opts.Clock.Now()); err != nil {
		return nil, err
	}
	period, loc, err := mapCountdownSettings(cfg)
	if err != nil {
		return nil, err
	}
	rs, err := mapRenderConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, storeEnabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	dcfg, err := mapDebugConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg))
	a.logs = logSvc
	a.log = root.With(logx.String("comp", "app"))
	a.bus = eventbus.New()

	if storeEnabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a.format = rs.format
	a.renderMode = rs.mode
	a.sinkName = notifierSinkName(cfg)
	a.notif = notifier.New(ncfg, newSink(a.sinkName, opts.Out, root), root, a.bus, a.store)
	a.rnd = render.New(render.Options{
		Mode:     rs.mode,
		Format:   rs.format,
		BarWidth: rs.width,
		Out:      opts.Out,
		Logger:   root,
	})
	a.reg = registry.New(registry.Options{
		Clock:    opts.Clock,
		Period:   period,
		Location: loc,
		Logger:   root,
		Bus:      a.bus,
		Store:    a.store,
	})
	a.dbg = debugsrv.New(dcfg, a.reg, root)
	if err := a.reg.Sync(mapEntries(cfg)); err != nil {
		a.closeStore()
		return nil, err
	}
	return a, nil
}

func (a *App) Registry() *registry.Registry { return a.reg }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error,
// every countdown finished with ExitWhenDone, or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.logs.Logger())
		a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
			return a.validate(a.withOverrides(cfg))
		})
	}

	// Queued notifications are drained by Stop, so the workers outlive the
	// supervisor context.
	if a.notif.Enabled() {
		a.notif.Start(context.WithoutCancel(a.sup.Context()))
	}

	// Subscribe before the registry starts so started and elapsed events
	// are seen.
	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("countdown.events", func(c context.Context) {
		defer unsub()
		a.eventLoop(c, events)
	})
	if a.rnd.Mode() != render.ModeNone {
		frames, unsubFrames := a.bus.Subscribe(256)
		done := make(chan struct{})
		a.renderDone = done
		a.sup.Go0("render", func(c context.Context) {
			defer close(done)
			defer unsubFrames()
			a.rnd.Run(c, frames)
		})
	}

	a.reg.Start(a.sup.Context())
	if a.dbg.Enabled() {
		a.dbg.Start(a.sup.Context())
	}

	if a.cfgm != nil {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.log.Info("app started", logx.Int("countdowns", len(a.reg.Names())))
	return nil
}

func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(ctx, e)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, e eventbus.Event) {
	if e.Type == eventbus.CountdownTick {
		return
	}
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))

	ev, ok := e.Data.(registry.Event)
	if !ok || e.Type != eventbus.CountdownCompleted {
		return
	}
	// Elapsed completions were due while the process was down; they are
	// reported but not announced again.
	if ev.Notify && !ev.Elapsed && a.notif.Enabled() {
		n := notifier.Notification{
			Name:   ev.Name,
			RunID:  ev.RunID,
			Target: ev.Target,
			Text:   notifier.CompletionText(ev.Name, ev.Initial, a.formatOptions()),
		}
		if err := a.notif.Notify(ctx, n); err != nil {
			a.log.Warn("completion notification not queued", logx.String("name", ev.Name), logx.Err(err))
		}
	}
	if a.opts.ExitWhenDone && !a.anyRunning() {
		a.log.Info("all countdowns finished")
		a.sup.Cancel()
	}
}

func (a *App) anyRunning() bool {
	for _, s := range a.reg.Snapshot() {
		if s.Snapshot.State == countdown.Running {
			return true
		}
	}
	return false
}

func (a *App) formatOptions() durfmt.Options {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.format
}

func (a *App) withOverrides(cfg *Config) *Config {
	if cfg == nil || a.opts.Render == nil {
		return cfg
	}
	cp := *cfg
	var r config.RenderConfig
	if cfg.Render != nil {
		r = *cfg.Render
	}
	a.opts.Render(&r)
	cp.Render = &r
	return &cp
}

func (a *App) validate(cfg *Config) error {
	if _, _, err := mapCountdownSettings(cfg); err != nil {
		return err
	}
	if _, err := mapRenderConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDebugConfig(cfg); err != nil {
		return err
	}
	return checkEntries(cfg, a.opts.Clock.Now())
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *Config) {
	// Track last applied config to generate a safe diff summary.
	lastApplied := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			newCfg = a.withOverrides(newCfg)
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *Config) {
	sections, attrs, changedNames := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
		if len(changedNames) > 0 {
			a.log.Debug("countdown changes detected", logx.Any("countdowns", changedNames))
		}
	} else {
		a.log.Debug("config reload received, but no effective changes detected")
	}

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if period, loc, err := mapCountdownSettings(newCfg); err != nil {
		a.log.Warn("invalid countdown settings; keeping previous", logx.Err(err))
	} else {
		a.reg.Configure(period, loc)
	}

	if rs, err := mapRenderConfig(newCfg); err != nil {
		a.log.Warn("invalid render config; keeping previous", logx.Err(err))
	} else {
		a.mu.Lock()
		a.format = rs.format
		modeChanged := rs.mode != a.renderMode
		a.mu.Unlock()
		a.rnd.SetFormat(rs.format)
		if modeChanged {
			a.log.Warn("render.mode changed; restart required for changes to take effect")
		}
	}

	a.applyNotifier(ctx, newCfg)

	if dcfg, err := mapDebugConfig(newCfg); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.dbg.Reconfigure(ctx, dcfg)
	}

	if err := a.reg.Sync(mapEntries(newCfg)); err != nil {
		a.log.Warn("some countdowns were rejected", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: changedNames})

	// Keep the final log line concise (details are in debug logs).
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

func (a *App) applyNotifier(ctx context.Context, newCfg *Config) {
	ncfg, err := mapNotifierConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	a.mu.Lock()
	sinkChanged := notifierSinkName(newCfg) != a.sinkName
	a.mu.Unlock()
	if sinkChanged {
		a.log.Warn("notifier.sink changed; restart required for changes to take effect")
	}

	prevEnabled := a.notif.Enabled()
	a.notif.Apply(ncfg)
	switch {
	case prevEnabled && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevEnabled && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(context.WithoutCancel(ctx))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStore()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "registry", 2*time.Second, func(context.Context) error { a.reg.Stop(); return nil })
	a.step(ctx, "render", time.Second, a.stopRender)
	a.step(ctx, "debug", time.Second, func(c context.Context) error { a.dbg.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	// Finally, wait for supervised goroutines (config watch/reload, event loops).
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeStore() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// stopRender lets the render loop flush what it has queued before the
// renderer is closed.
func (a *App) stopRender(ctx context.Context) error {
	if a.renderDone != nil {
		select {
		case <-a.renderDone:
		case <-ctx.Done():
		}
	}
	a.rnd.Close()
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
