package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"countdown/internal/clock"
	"countdown/internal/config"
	"countdown/internal/render"
	"countdown/pkg/duration"
	"countdown/pkg/durfmt"
)

var epoch = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietConfig(entries ...config.CountdownEntry) *Config {
	return &Config{
		Logging:    config.LoggingConfig{Level: "ERROR"},
		Countdown:  config.CountdownConfig{Timezone: "UTC"},
		Notifier:   &config.NotifierConfig{Enabled: true, Sink: "stdout", RetryBase: "1ms"},
		Countdowns: entries,
	}
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRunsToCompletionAndNotifies(t *testing.T) {
	t.Parallel()
	clk := clock.Fake(epoch)
	out := &syncBuffer{}
	a, err := NewFromConfig(quietConfig(config.CountdownEntry{Name: "tea", In: "2s"}), Options{
		Out:          out,
		Clock:        clk,
		ExitWhenDone: true,
	})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.WaitForTimers(1)
	deadline := time.After(5 * time.Second)
	for finished := false; !finished; {
		select {
		case <-a.Done():
			finished = true
		case <-deadline:
			t.Fatal("app did not finish")
		case <-time.After(5 * time.Millisecond):
			clk.Advance(time.Second)
		}
	}
	stopApp(t, a)

	got := out.String()
	if !strings.Contains(got, "tea: finished after 2 seconds\n") {
		t.Fatalf("output = %q", got)
	}
	if !strings.Contains(got, "tea: 0 seconds\n") {
		t.Fatalf("final tick not rendered: %q", got)
	}
}

func TestElapsedInputFinishesWithoutNotification(t *testing.T) {
	t.Parallel()
	clk := clock.Fake(epoch)
	out := &syncBuffer{}
	a, err := NewFromConfig(quietConfig(config.CountdownEntry{Name: "past", At: "2020-01-01T00:00:00Z"}), Options{
		Out:          out,
		Clock:        clk,
		ExitWhenDone: true,
	})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("app did not finish")
	}
	stopApp(t, a)
	if strings.Contains(out.String(), "finished after") {
		t.Fatalf("elapsed countdown was announced: %q", out.String())
	}
	if clk.PendingCount() != 0 {
		t.Fatalf("pending timers = %d, want 0", clk.PendingCount())
	}
}

func TestInvalidInputRejected(t *testing.T) {
	t.Parallel()
	_, err := NewFromConfig(quietConfig(config.CountdownEntry{Name: "x", In: "2 weeks"}), Options{Clock: clock.Fake(epoch)})
	if !errors.Is(err, duration.ErrInvalidInput) {
		t.Fatalf("NewFromConfig error = %v, want ErrInvalidInput", err)
	}
}

func TestRenderOverride(t *testing.T) {
	t.Parallel()
	a, err := NewFromConfig(quietConfig(config.CountdownEntry{Name: "x", In: "1h"}), Options{
		Out:   &syncBuffer{},
		Clock: clock.Fake(epoch),
		Render: func(r *config.RenderConfig) {
			r.Mode = "none"
			r.Format = "short"
		},
	})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	defer stopApp(t, a)
	if a.rnd.Mode() != render.ModeNone {
		t.Fatalf("render mode = %q, want none", a.rnd.Mode())
	}
	if a.formatOptions().Style != durfmt.StyleShort {
		t.Fatalf("format = %+v", a.formatOptions())
	}
}

const baseYAML = `logging:
  level: ERROR
countdown:
  timezone: UTC
render:
  mode: none
notifier:
  enabled: false
countdowns:
  - name: tea
    in: 4m
`

func TestReloadSyncsCountdowns(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "countdown.yaml")
	if err := os.WriteFile(path, []byte(baseYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := New(path, Options{Out: &syncBuffer{}, Clock: clock.Fake(epoch)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopApp(t, a)

	// Invalid input is rejected as a whole; the running set is unchanged.
	bad := baseYAML + "  - name: egg\n    in: soon\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.cfgm.Reload(context.Background()); err == nil {
		t.Fatal("Reload accepted an invalid countdown")
	}
	if got := a.reg.Names(); !slices.Equal(got, []string{"tea"}) {
		t.Fatalf("names after rejected reload = %v", got)
	}

	good := strings.Replace(baseYAML, "  - name: tea\n    in: 4m\n", "  - name: egg\n    in: 6m\n", 1)
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.cfgm.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for !slices.Equal(a.reg.Names(), []string{"egg"}) {
		select {
		case <-deadline:
			t.Fatalf("names = %v, want [egg]", a.reg.Names())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	got, err := mapNotifierConfig(&Config{})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if !got.Enabled || got.Workers != 2 || got.RetryBase != 500*time.Millisecond || got.DedupWindow != time.Minute {
		t.Fatalf("defaults = %+v", got)
	}

	got, err = mapNotifierConfig(&Config{Notifier: &config.NotifierConfig{Workers: 4, DedupWindow: "5m"}})
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if got.Enabled || got.Workers != 4 || got.DedupWindow != 5*time.Minute || got.RetryMax != 3 {
		t.Fatalf("explicit = %+v", got)
	}

	if _, err := mapNotifierConfig(&Config{Notifier: &config.NotifierConfig{Workers: -1}}); err == nil {
		t.Fatal("negative workers accepted")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		wantErr bool
	}{
		{"omitted", nil, false, false},
		{"none", &config.StorageConfig{Driver: "none"}, false, false},
		{"file", &config.StorageConfig{Driver: "file", Path: "x"}, true, false},
		{"sqlite without path", &config.StorageConfig{Driver: "sqlite"}, false, true},
		{"sqlite", &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}, true, false},
		{"unknown", &config.StorageConfig{Driver: "redis"}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, enabled, err := mapStorageConfig(&Config{Storage: tc.sc})
			if (err != nil) != tc.wantErr || enabled != tc.enabled {
				t.Fatalf("mapStorageConfig = %+v, %v, %v", sc, enabled, err)
			}
			if tc.name == "sqlite" && (sc.Driver != "sqlite" || sc.BusyTimeout != 2*time.Second) {
				t.Fatalf("sqlite config = %+v", sc)
			}
		})
	}
}

func TestMapEntries(t *testing.T) {
	t.Parallel()
	amount := 1.5
	off := false
	got := mapEntries(&Config{Countdowns: []config.CountdownEntry{
		{Name: "a", Amount: &amount, Unit: "hour"},
		{Name: "b", Next: "0 9 * * *", Repeat: true, Notify: &off},
	}})
	if len(got) != 2 {
		t.Fatalf("entries = %+v", got)
	}
	if !got[0].Input.HasAmount || got[0].Input.Amount != 1.5 || !got[0].Notify {
		t.Fatalf("entry a = %+v", got[0])
	}
	if !got[1].Repeat || got[1].Notify || !got[1].Input.IsCron() {
		t.Fatalf("entry b = %+v", got[1])
	}
}

func TestMapRenderConfigSeparator(t *testing.T) {
	t.Parallel()
	empty, slash := "", "/"
	cases := []struct {
		name string
		sep  *string
		want string
	}{
		{"omitted", nil, "1h · 2m"},
		{"empty", &empty, "1h2m"},
		{"custom", &slash, "1h/2m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rs, err := mapRenderConfig(&Config{Render: &config.RenderConfig{Format: "short", Separator: tc.sep}})
			if err != nil {
				t.Fatalf("mapRenderConfig: %v", err)
			}
			got := durfmt.Format(duration.Structured{Hours: 1, Minutes: 2}, rs.format)
			if got != tc.want {
				t.Fatalf("Format = %q, want %q", got, tc.want)
			}
		})
	}
}
