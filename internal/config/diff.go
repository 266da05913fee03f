package config

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"countdown/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the names of countdowns that
// were added, removed or had their entry changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Countdown.Period) != strings.TrimSpace(newCfg.Countdown.Period) ||
		strings.TrimSpace(oldCfg.Countdown.Timezone) != strings.TrimSpace(newCfg.Countdown.Timezone) {
		changed = append(changed, "countdown")
		attrs = append(attrs,
			logx.String("countdown.period", strings.TrimSpace(newCfg.Countdown.Period)),
			logx.String("countdown.timezone", strings.TrimSpace(newCfg.Countdown.Timezone)),
		)
	}

	oldR, newR := derefRender(oldCfg.Render), derefRender(newCfg.Render)
	if oldR != newR {
		changed = append(changed, "render")
		attrs = append(attrs,
			logx.String("render.mode", newR.Mode),
			logx.String("render.format", newR.Format),
			logx.Int("render.max_units", newR.MaxUnits),
		)
	}

	// Nil notifier means runtime defaults.
	defN := DefaultNotifier()
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = &defN
	}
	if newN == nil {
		newN = &defN
	}
	if *oldN != *newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.String("notifier.sink", newN.Sink),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Bool("notifier.persist_dedup", newN.PersistDedup),
		)
	}

	// Nil storage means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	var oD, nD DebugConfig
	if oldCfg.Debug != nil {
		oD = *oldCfg.Debug
	}
	if newCfg.Debug != nil {
		nD = *newCfg.Debug
	}
	if oD != nD {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nD.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nD.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(nD.Token) != ""),
			logx.Bool("debug.pprof", nD.Pprof),
		)
	}

	names := diffCountdowns(oldCfg.Countdowns, newCfg.Countdowns)
	if len(names) > 0 {
		changed = append(changed, "countdowns")
		attrs = append(attrs,
			logx.Int("countdowns.changed_count", len(names)),
			logx.Int("countdowns.total", len(newCfg.Countdowns)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, names
}

// renderView is RenderConfig with the separator pointer resolved, so two
// configs compare by value.
type renderView struct {
	RenderConfig
	separator    string
	hasSeparator bool
}

func derefRender(r *RenderConfig) renderView {
	if r == nil {
		return renderView{}
	}
	v := renderView{RenderConfig: *r}
	if r.Separator != nil {
		v.separator, v.hasSeparator = *r.Separator, true
	}
	v.RenderConfig.Separator = nil
	return v
}

func diffCountdowns(oldL, newL []CountdownEntry) []string {
	index := func(l []CountdownEntry) map[string]uint64 {
		m := make(map[string]uint64, len(l))
		for _, e := range l {
			b, _ := json.Marshal(e)
			m[strings.TrimSpace(e.Name)] = hashBytes(b)
		}
		return m
	}
	oldM, newM := index(oldL), index(newL)

	out := make([]string, 0)
	for name, h := range newM {
		if oh, ok := oldM[name]; !ok || oh != h {
			out = append(out, name)
		}
	}
	for name := range oldM {
		if _, ok := newM[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
