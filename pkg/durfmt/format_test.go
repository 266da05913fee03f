package durfmt

import (
	"testing"

	"countdown/pkg/duration"
)

func TestFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		d    duration.Structured
		opts Options
		want string
	}{
		{
			name: "zero full",
			d:    duration.Structured{},
			want: "0 seconds",
		},
		{
			name: "zero short",
			d:    duration.Structured{},
			opts: Options{Style: StyleShort},
			want: "0s",
		},
		{
			name: "hours and minutes",
			d:    duration.Structured{Hours: 2, Minutes: 5},
			opts: Options{Style: StyleFull, Separator: ", "},
			want: "2 hours, 5 minutes",
		},
		{
			name: "default separator and singular",
			d:    duration.Structured{Days: 1, Hours: 1, Minutes: 1, Seconds: 1},
			want: "1 day · 1 hour · 1 minute · 1 second",
		},
		{
			name: "short style",
			d:    duration.Structured{Hours: 2, Minutes: 5},
			opts: Options{Style: StyleShort, Separator: " "},
			want: "2h 5m",
		},
		{
			name: "max units truncates after filtering",
			d:    duration.Structured{Years: 1, Days: 3, Minutes: 4, Seconds: 5},
			opts: Options{MaxUnits: 2, Separator: " "},
			want: "1 year 3 days",
		},
		{
			name: "show zero",
			d:    duration.Structured{Minutes: 1},
			opts: Options{ShowZero: true, MaxUnits: 3, Separator: "/"},
			want: "0 years/0 months/0 days",
		},
		{
			name: "milliseconds not rendered",
			d:    duration.Structured{Milliseconds: 999},
			want: "0 seconds",
		},
		{
			name: "months short",
			d:    duration.Structured{Months: 2, Seconds: 30},
			opts: Options{Style: StyleShort, Separator: " "},
			want: "2mo 30s",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Format(tt.d, tt.opts); got != tt.want {
				t.Fatalf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDecomposed(t *testing.T) {
	t.Parallel()
	got := Format(duration.Decompose(90061000), Options{Separator: ", "})
	if got != "1 day, 1 hour, 1 minute, 1 second" {
		t.Fatalf("Format(Decompose) = %q", got)
	}
}

func TestFormatNoSeparator(t *testing.T) {
	t.Parallel()
	d := duration.Structured{Hours: 1, Minutes: 2, Seconds: 3}
	if got := Format(d, Options{Style: StyleShort, NoSeparator: true}); got != "1h2m3s" {
		t.Fatalf("Format(NoSeparator) = %q, want %q", got, "1h2m3s")
	}
	if got := Format(d, Options{Style: StyleShort, Separator: "/", NoSeparator: true}); got != "1h2m3s" {
		t.Fatalf("NoSeparator did not override Separator: %q", got)
	}
	if got := Format(d, Options{Style: StyleShort}); got != "1h · 2m · 3s" {
		t.Fatalf("Format(default separator) = %q", got)
	}
}

func TestParseStyle(t *testing.T) {
	t.Parallel()
	if s, err := ParseStyle("SHORT"); err != nil || s != StyleShort {
		t.Fatalf("ParseStyle(SHORT) = %q, %v", s, err)
	}
	if s, err := ParseStyle(""); err != nil || s != StyleFull {
		t.Fatalf("ParseStyle(\"\") = %q, %v", s, err)
	}
	if _, err := ParseStyle("tiny"); err == nil {
		t.Fatal("expected error for unknown style")
	}
}
