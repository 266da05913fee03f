package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validate checks structure and field syntax. Countdown inputs are only
// checked for shape here; the registry resolves them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := ParseDurationField("countdown.period", cfg.Countdown.Period); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Countdown.Location(); err != nil {
		errs = append(errs, err)
	}

	if r := cfg.Render; r != nil {
		switch strings.ToLower(strings.TrimSpace(r.Mode)) {
		case "", "line", "bar", "none":
		default:
			errs = append(errs, fmt.Errorf("render.mode: invalid value %q (use line, bar or none)", r.Mode))
		}
		switch strings.ToLower(strings.TrimSpace(r.Format)) {
		case "", "full", "short":
		default:
			errs = append(errs, fmt.Errorf("render.format: invalid value %q (use full or short)", r.Format))
		}
		if r.MaxUnits < 0 {
			errs = append(errs, errors.New("render.max_units: must be >= 0"))
		}
	}

	if n := cfg.Notifier; n != nil {
		switch strings.ToLower(strings.TrimSpace(n.Sink)) {
		case "", "log", "stdout", "stderr":
		default:
			errs = append(errs, fmt.Errorf("notifier.sink: invalid value %q", n.Sink))
		}
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s := cfg.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if d := cfg.Debug; d != nil {
		for path, raw := range map[string]string{
			"debug.read_timeout": d.ReadTimeout,
			"debug.idle_timeout": d.IdleTimeout,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}

	seen := make(map[string]int, len(cfg.Countdowns))
	for i, e := range cfg.Countdowns {
		path := fmt.Sprintf("countdowns[%d]", i)
		name := strings.TrimSpace(e.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if j, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: %q already used by countdowns[%d]", path, name, j))
		} else {
			seen[name] = i
		}
		if err := e.validateInput(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

func (e CountdownEntry) validateInput() error {
	set := 0
	if strings.TrimSpace(e.In) != "" {
		set++
	}
	if e.Amount != nil || strings.TrimSpace(e.Unit) != "" {
		set++
		if e.Amount == nil {
			return errors.New("unit requires amount")
		}
		if strings.TrimSpace(e.Unit) == "" {
			return errors.New("amount requires unit")
		}
		if math.IsNaN(*e.Amount) || math.IsInf(*e.Amount, 0) {
			return errors.New("amount must be finite")
		}
	}
	if strings.TrimSpace(e.At) != "" {
		set++
	}
	if strings.TrimSpace(e.Next) != "" {
		set++
	}
	switch {
	case set == 0:
		return errors.New("one of in, amount+unit, at or next is required")
	case set > 1:
		return errors.New("only one of in, amount+unit, at or next may be set")
	}
	if e.Repeat && strings.TrimSpace(e.Next) == "" {
		return errors.New("repeat requires next")
	}
	return nil
}

// Location loads the configured timezone, or time.Local when unset.
func (c CountdownConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("countdown.timezone: %w", err)
	}
	return loc, nil
}

// NotifyEnabled reports whether a completion notification is wanted.
func (e CountdownEntry) NotifyEnabled() bool {
	return e.Notify == nil || *e.Notify
}
