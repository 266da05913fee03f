package app

import (
	"errors"
	"fmt"
	"time"

	"countdown/internal/countdown"
	"countdown/internal/registry"
	"countdown/internal/render"
	"countdown/pkg/durfmt"
)

// mapEntries converts the countdowns list into registry entries.
func mapEntries(cfg *Config) []registry.Entry {
	if cfg == nil {
		return nil
	}
	out := make([]registry.Entry, 0, len(cfg.Countdowns))
	for _, e := range cfg.Countdowns {
		in := registry.Input{In: e.In, Unit: e.Unit, At: e.At, Next: e.Next}
		if e.Amount != nil {
			in.Amount, in.HasAmount = *e.Amount, true
		}
		out = append(out, registry.Entry{Name: e.Name, Input: in, Repeat: e.Repeat, Notify: e.NotifyEnabled()})
	}
	return out
}

// mapCountdownSettings returns the tick period and timezone.
func mapCountdownSettings(cfg *Config) (time.Duration, *time.Location, error) {
	if cfg == nil {
		return countdown.DefaultPeriod, time.Local, nil
	}
	period, err := parseDurationOrDefault("countdown.period", cfg.Countdown.Period, countdown.DefaultPeriod)
	if err != nil {
		return 0, nil, err
	}
	loc, err := cfg.Countdown.Location()
	if err != nil {
		return 0, nil, err
	}
	return period, loc, nil
}

// checkEntries resolves every entry at now without starting anything.
func checkEntries(cfg *Config, now time.Time) error {
	_, loc, err := mapCountdownSettings(cfg)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range mapEntries(cfg) {
		if err := registry.Check(e.Input, now, loc); err != nil {
			errs = append(errs, fmt.Errorf("countdowns[%s]: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}

type renderSettings struct {
	mode   render.Mode
	format durfmt.Options
	width  int
}

func mapRenderConfig(cfg *Config) (renderSettings, error) {
	if cfg == nil || cfg.Render == nil {
		return renderSettings{mode: render.ModeLine}, nil
	}
	r := cfg.Render
	mode, err := render.ParseMode(r.Mode)
	if err != nil {
		return renderSettings{}, fmt.Errorf("render.mode: %w", err)
	}
	style, err := durfmt.ParseStyle(r.Format)
	if err != nil {
		return renderSettings{}, fmt.Errorf("render.format: %w", err)
	}
	format := durfmt.Options{
		MaxUnits: r.MaxUnits,
		Style:    style,
		ShowZero: r.ShowZero,
	}
	if r.Separator != nil {
		format.Separator = *r.Separator
		format.NoSeparator = *r.Separator == ""
	}
	return renderSettings{
		mode:   mode,
		format: format,
		width:  r.BarWidth,
	}, nil
}
