package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/pflag"

	"countdown/internal/app"
	"countdown/internal/config"
	"countdown/pkg/duration"
	"countdown/pkg/durfmt"
)

const (
	exitFailure = 1
	exitInput   = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func inputError(format string, args ...any) error {
	return &exitError{code: exitInput, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "countdown: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(exitFailure)
	}
}

type flags struct {
	config   string
	in       string
	at       string
	next     string
	name     string
	timezone string

	format    string
	maxUnits  int
	separator string
	showZero  bool
	render    string
	barWidth  int
}

func run(args []string) error {
	var f flags
	fs := pflag.NewFlagSet("countdown", pflag.ContinueOnError)
	fs.StringVarP(&f.config, "config", "c", "", "path to a JSON or YAML config file (runs until interrupted)")
	fs.StringVar(&f.in, "in", "", `relative duration, e.g. "5m", "90 seconds", "1.5 hours"`)
	fs.StringVar(&f.at, "at", "", "target instant (RFC 3339, local date/time, YYYYMMDD, or unix milliseconds with 10+ digits)")
	fs.StringVar(&f.next, "next", "", `cron expression; counts down to its next occurrence, e.g. "0 9 * * MON-FRI"`)
	fs.StringVar(&f.name, "name", "countdown", "countdown name used in output")
	fs.StringVar(&f.timezone, "timezone", "", "IANA timezone for --at without offset and --next (default local)")
	fs.StringVar(&f.format, "format", "full", "unit labels: full or short")
	fs.IntVar(&f.maxUnits, "max-units", durfmt.DefaultMaxUnits, "maximum number of units shown")
	fs.StringVar(&f.separator, "separator", "", `separator between units (default " · "; "" joins units directly)`)
	fs.BoolVar(&f.showZero, "show-zero", false, "show zero-valued units")
	fs.StringVar(&f.render, "render", "line", "output mode: line, bar or none")
	fs.IntVar(&f.barWidth, "bar-width", 0, "progress bar width in bar mode")
	fs.SortFlags = false
	fs.Usage = func() { printHelp(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &exitError{code: exitInput, err: err}
	}
	if fs.NArg() > 1 {
		return inputError("unexpected argument: %s", fs.Arg(1))
	}
	// "countdown 5m" is shorthand for --in 5m.
	if fs.NArg() == 1 {
		if f.in != "" || f.at != "" || f.next != "" {
			return inputError("unexpected argument: %s", fs.Arg(0))
		}
		f.in = fs.Arg(0)
	}

	overrides := renderOverrides(fs, f)

	if f.config != "" {
		if f.in != "" || f.at != "" || f.next != "" {
			return inputError("--config cannot be combined with --in, --at or --next")
		}
		a, err := app.New(f.config, app.Options{Render: overrides})
		if err != nil {
			return classify(err)
		}
		return serve(a)
	}

	entry, err := adHocEntry(f)
	if err != nil {
		return err
	}
	cfg := &config.Config{
		Logging:    config.LoggingConfig{Level: "WARN", Console: true},
		Countdown:  config.CountdownConfig{Timezone: f.timezone},
		Notifier:   &config.NotifierConfig{Enabled: true, Sink: "stdout"},
		Countdowns: []config.CountdownEntry{entry},
	}
	a, err := app.NewFromConfig(cfg, app.Options{ExitWhenDone: true, Render: overrides})
	if err != nil {
		return &exitError{code: exitInput, err: err}
	}
	return serve(a)
}

func adHocEntry(f flags) (config.CountdownEntry, error) {
	e := config.CountdownEntry{Name: strings.TrimSpace(f.name), In: f.in, At: f.at, Next: f.next}
	set := 0
	for _, v := range []string{f.in, f.at, f.next} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return e, inputError("one of --in, --at, --next or --config is required (see --help)")
	case set > 1:
		return e, inputError("only one of --in, --at or --next may be set")
	}
	return e, nil
}

// renderOverrides applies the render flags given on the command line. In
// config mode only explicitly set flags override the file.
func renderOverrides(fs *pflag.FlagSet, f flags) func(*config.RenderConfig) {
	return func(r *config.RenderConfig) {
		adHoc := f.config == ""
		if adHoc || fs.Changed("render") {
			r.Mode = f.render
		}
		if adHoc || fs.Changed("format") {
			r.Format = f.format
		}
		if adHoc || fs.Changed("max-units") {
			r.MaxUnits = f.maxUnits
		}
		if fs.Changed("separator") {
			sep := f.separator
			r.Separator = &sep
		}
		if fs.Changed("show-zero") {
			r.ShowZero = f.showZero
		}
		if fs.Changed("bar-width") {
			r.BarWidth = f.barWidth
		}
	}
}

func classify(err error) error {
	if errors.Is(err, duration.ErrInvalidInput) {
		return &exitError{code: exitInput, err: err}
	}
	return err
}

func serve(a *app.App) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if err := a.Start(context.Background()); err != nil {
		return err
	}
	// No-op unless started by systemd with Type=notify.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	reason := app.StopCompleted
	select {
	case s := <-sig:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
	return a.Err()
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `countdown: count down to a moment and print the time remaining.

Usage:
  countdown [flags] [duration]
  countdown --config countdown.yaml [render flags]

Without --config a single countdown runs and the program exits when it
reaches zero. With --config every countdown in the file runs until
interrupted, and edits to the file are applied live.

Examples:
  countdown 5m
  countdown --in "1.5 hours" --format short
  countdown --at 2026-12-31T23:59:59 --timezone Europe/Berlin --render bar
  countdown --next "0 9 * * MON-FRI" --name standup

Flags:
%s`, fs.FlagUsages())
}
