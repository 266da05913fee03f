package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Countdown CountdownConfig `json:"countdown"`

	Render   *RenderConfig   `json:"render,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Debug    *DebugConfig    `json:"debug,omitempty"`

	Countdowns []CountdownEntry `json:"countdowns"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CountdownConfig holds settings shared by every countdown.
//
// Defaults (when fields are omitted/zero):
//   - period: "1s"
//   - timezone: local time
type CountdownConfig struct {
	// Period is the tick period as a Go duration string.
	Period string `json:"period,omitempty"`

	// Timezone is an IANA name used for cron expressions and for instants
	// written without an offset.
	Timezone string `json:"timezone,omitempty"`
}

// CountdownEntry describes one named countdown. Exactly one input form must
// be set: in, amount+unit, at, or next.
//
// Example:
//
//	countdowns:
//	  - name: tea
//	    in: 4m
//	  - name: standup
//	    next: "0 9 * * MON-FRI"
//	    repeat: true
type CountdownEntry struct {
	Name string `json:"name"`

	In     string   `json:"in,omitempty"`     // "5 minutes", "90s", "1h30m"
	Amount *float64 `json:"amount,omitempty"` // with Unit
	Unit   string   `json:"unit,omitempty"`
	At     string   `json:"at,omitempty"`   // RFC3339, local layouts, or unix ms
	Next   string   `json:"next,omitempty"` // cron expression

	// Repeat re-arms a cron countdown for its next occurrence on completion.
	Repeat bool `json:"repeat,omitempty"`

	// Notify sends a completion notification. Nil means true.
	Notify *bool `json:"notify,omitempty"`
}

// RenderConfig controls terminal output.
//
// Mode values:
//   - "line": one "name: remaining" line per tick (default)
//   - "bar": progress bars
//   - "none": no output
type RenderConfig struct {
	Mode      string  `json:"mode,omitempty"`
	Format    string  `json:"format,omitempty"` // "full" or "short"
	MaxUnits  int     `json:"max_units,omitempty"`
	Separator *string `json:"separator,omitempty"` // "" joins units with nothing
	ShowZero  bool    `json:"show_zero,omitempty"`
	BarWidth  int     `json:"bar_width,omitempty"`
}

// NotifierConfig controls the async completion notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Sink            string `json:"sink,omitempty"` // "log" (default), "stdout", "stderr"
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./countdown_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional status/pprof HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
//
// Endpoints: /healthz, /countdowns (JSON), and /debug/pprof/ when Pprof is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}

// DefaultNotifier is the runtime default used when the notifier section is
// omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Sink:            "log",
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
	}
}
