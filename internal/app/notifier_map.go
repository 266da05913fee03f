package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"countdown/internal/config"
	"countdown/internal/notifier"
	"countdown/pkg/logx"
)

// mapNotifierConfig maps the JSON notifier section into the runtime
// notifier.Config. An omitted section means enabled with defaults.
func mapNotifierConfig(cfg *Config) (notifier.Config, error) {
	n := config.DefaultNotifier()
	if cfg != nil && cfg.Notifier != nil {
		n = *cfg.Notifier
	}
	def := config.DefaultNotifier()

	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
	if out.Workers == 0 {
		out.Workers = def.Workers
	}
	if out.QueueSize == 0 {
		out.QueueSize = def.QueueSize
	}
	if out.RatePerSec == 0 {
		out.RatePerSec = def.RatePerSec
	}
	if out.RetryMax == 0 {
		out.RetryMax = def.RetryMax
	}
	if out.DedupMaxEntries == 0 {
		out.DedupMaxEntries = def.DedupMaxEntries
	}

	var err error
	if out.RetryBase, err = parseDurationOrDefault("notifier.retry_base", firstNonEmpty(n.RetryBase, def.RetryBase), 0); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = parseDurationOrDefault("notifier.retry_max_delay", firstNonEmpty(n.RetryMaxDelay, def.RetryMaxDelay), 0); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = parseDurationOrDefault("notifier.dedup_window", firstNonEmpty(n.DedupWindow, def.DedupWindow), 0); err != nil {
		return notifier.Config{}, err
	}

	switch {
	case out.Workers < 0:
		return notifier.Config{}, fmt.Errorf("notifier.workers must be >= 0")
	case out.QueueSize < 0:
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	case out.RatePerSec < 0:
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	case out.RetryMax < 0:
		return notifier.Config{}, fmt.Errorf("notifier.retry_max must be >= 0")
	case out.DedupMaxEntries < 0:
		return notifier.Config{}, fmt.Errorf("notifier.dedup_max_entries must be >= 0")
	}
	return out, nil
}

// notifierSinkName returns the normalized sink name ("log" when unset).
func notifierSinkName(cfg *Config) string {
	if cfg == nil || cfg.Notifier == nil {
		return "log"
	}
	s := strings.ToLower(strings.TrimSpace(cfg.Notifier.Sink))
	if s == "" {
		return "log"
	}
	return s
}

func newSink(name string, out io.Writer, log logx.Logger) notifier.Sink {
	switch name {
	case "stdout":
		if out == nil {
			out = os.Stdout
		}
		return notifier.NewWriterSink(out)
	case "stderr":
		return notifier.NewWriterSink(os.Stderr)
	default:
		return notifier.LogSink{Log: log.With(logx.String("comp", "notifier.sink"))}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
