package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
countdown:
  period: 500ms
  timezone: UTC
render:
  mode: bar
  format: short
countdowns:
  - name: tea
    in: 4m
  - name: launch
    at: "2027-01-01T00:00:00Z"
  - name: standup
    next: "0 9 * * MON-FRI"
    repeat: true
    notify: false
  - name: sprint
    amount: 2
    unit: weeks
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("countdown.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Countdown.Period != "500ms" || cfg.Render == nil || cfg.Render.Mode != "bar" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Countdowns) != 4 {
		t.Fatalf("countdowns = %d, want 4", len(cfg.Countdowns))
	}
	if cfg.Countdowns[2].NotifyEnabled() {
		t.Fatal("standup should have notify disabled")
	}
	if !cfg.Countdowns[0].NotifyEnabled() {
		t.Fatal("notify should default to true")
	}
	// Shape only: the week unit is rejected later by the registry.
	if cfg.Countdowns[3].Amount == nil || *cfg.Countdowns[3].Amount != 2 {
		t.Fatalf("amount = %v", cfg.Countdowns[3].Amount)
	}
	loc, err := cfg.Countdown.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("Location = %v, %v", loc, err)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"unknown field", "c.json", `{"countdowns":[],"bogus":1}`, "unknown field"},
		{"trailing data", "c.json", `{"countdowns":[]}{}`, "trailing data"},
		{"no input", "c.json", `{"countdowns":[{"name":"a"}]}`, "one of in"},
		{"two inputs", "c.json", `{"countdowns":[{"name":"a","in":"5m","at":"2030-01-01"}]}`, "only one of"},
		{"unit without amount", "c.json", `{"countdowns":[{"name":"a","unit":"minute"}]}`, "unit requires amount"},
		{"duplicate name", "c.json", `{"countdowns":[{"name":"a","in":"1m"},{"name":"a","in":"2m"}]}`, "already used"},
		{"missing name", "c.json", `{"countdowns":[{"in":"1m"}]}`, "name: required"},
		{"repeat without next", "c.json", `{"countdowns":[{"name":"a","in":"1m","repeat":true}]}`, "repeat requires next"},
		{"bad period", "c.json", `{"countdown":{"period":"soon"},"countdowns":[]}`, "countdown.period"},
		{"bad timezone", "c.json", `{"countdown":{"timezone":"Mars/Base"},"countdowns":[]}`, "countdown.timezone"},
		{"bad render mode", "c.json", `{"render":{"mode":"3d"},"countdowns":[]}`, "render.mode"},
		{"bad yaml", "c.yaml", "countdowns: [", "yaml unmarshal"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.path, []byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if d, err := ParseDurationOrDefault("x", "0s", time.Second); err != nil || d != time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	four := 4.0
	oldCfg := &Config{
		Countdowns: []CountdownEntry{
			{Name: "tea", In: "4m"},
			{Name: "launch", At: "2027-01-01"},
			{Name: "gone", In: "1h"},
		},
	}
	newCfg := &Config{
		Countdown: CountdownConfig{Period: "2s"},
		Countdowns: []CountdownEntry{
			{Name: "tea", In: "4m"},
			{Name: "launch", At: "2027-06-01"},
			{Name: "fresh", Amount: &four, Unit: "minutes"},
		},
	}

	sections, attrs, names := SummarizeConfigChange(oldCfg, newCfg)
	if !slices.Equal(sections, []string{"countdown", "countdowns"}) {
		t.Fatalf("sections = %v", sections)
	}
	if !slices.Equal(names, []string{"fresh", "gone", "launch"}) {
		t.Fatalf("names = %v", names)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}

	sections, _, names = SummarizeConfigChange(newCfg, newCfg)
	if len(sections) != 0 || len(names) != 0 {
		t.Fatalf("identical configs reported %v %v", sections, names)
	}

	// An explicit notifier equal to the defaults is not a change.
	def := DefaultNotifier()
	sections, _, _ = SummarizeConfigChange(&Config{}, &Config{Notifier: &def})
	if len(sections) != 0 {
		t.Fatalf("sections = %v, want none", sections)
	}
}

func TestRenderSeparatorChange(t *testing.T) {
	t.Parallel()
	a, b, empty := " ", " ", ""
	sections, _, _ := SummarizeConfigChange(
		&Config{Render: &RenderConfig{Separator: &a}},
		&Config{Render: &RenderConfig{Separator: &b}},
	)
	if len(sections) != 0 {
		t.Fatalf("equal separators reported %v", sections)
	}
	sections, _, _ = SummarizeConfigChange(&Config{}, &Config{Render: &RenderConfig{Separator: &empty}})
	if !slices.Equal(sections, []string{"render"}) {
		t.Fatalf("sections = %v, want [render]", sections)
	}

	cfg, err := Decode("c.yaml", []byte("render:\n  separator: \"\"\ncountdowns: []\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Render.Separator == nil || *cfg.Render.Separator != "" {
		t.Fatalf("separator = %v, want explicit empty", cfg.Render.Separator)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "countdown.json")
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(`{"countdowns":[{"name":"tea","in":"4m"}]}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx := context.Background()
	if ok, err := m.Reload(ctx); err != nil || ok {
		t.Fatalf("Reload unchanged = %v, %v", ok, err)
	}

	write(`{"countdowns":[{"name":"tea","in":"5m"}]}`)
	if ok, err := m.Reload(ctx); err != nil || !ok {
		t.Fatalf("Reload changed = %v, %v", ok, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Countdowns[0].In != "5m" {
			t.Fatalf("published %+v", cfg.Countdowns)
		}
	default:
		t.Fatal("nothing published")
	}

	m.SetValidator(func(context.Context, *Config) error { return os.ErrInvalid })
	write(`{"countdowns":[{"name":"tea","in":"6m"}]}`)
	if ok, err := m.Reload(ctx); err == nil || ok {
		t.Fatalf("Reload with rejecting validator = %v, %v", ok, err)
	}
	if got := m.Get().Countdowns[0].In; got != "5m" {
		t.Fatalf("rejected config was committed: %q", got)
	}
}

func TestWatchPicksUpWrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "countdown.yaml")
	if err := os.WriteFile(path, []byte("countdowns: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if len(cfg.Countdowns) != 1 || cfg.Countdowns[0].Name != "tea" {
				t.Fatalf("published %+v", cfg.Countdowns)
			}
			return
		case <-tick.C:
			// Rewrite until the watcher is up and sees it.
			_ = os.WriteFile(path, []byte("countdowns:\n  - name: tea\n    in: 4m\n"), 0o600)
		case <-deadline:
			t.Fatal("watch did not publish")
		}
	}
}
