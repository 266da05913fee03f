// Package durfmt renders a duration.Structured as a human-readable string,
// e.g. "2 hours · 5 minutes" or "2h 5m".
package durfmt

import (
	"fmt"
	"strconv"
	"strings"

	"countdown/pkg/duration"
)

// Style selects unit labels.
type Style string

const (
	StyleFull  Style = "full"  // "2 hours"
	StyleShort Style = "short" // "2h"
)

const (
	DefaultMaxUnits  = 6
	DefaultSeparator = " · "
)

// Options controls Format. Zero values select the defaults.
type Options struct {
	MaxUnits    int
	// Separator joins units. Empty selects DefaultSeparator unless
	// NoSeparator is set, which joins units with nothing.
	Separator   string
	NoSeparator bool
	Style       Style
	ShowZero    bool
}

func (o Options) withDefaults() Options {
	if o.MaxUnits <= 0 {
		o.MaxUnits = DefaultMaxUnits
	}
	switch {
	case o.NoSeparator:
		o.Separator = ""
	case o.Separator == "":
		o.Separator = DefaultSeparator
	}
	if o.Style != StyleShort {
		o.Style = StyleFull
	}
	return o
}

// ParseStyle accepts "full" or "short" (any case); empty means full.
func ParseStyle(raw string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "full":
		return StyleFull, nil
	case "short":
		return StyleShort, nil
	default:
		return "", fmt.Errorf("invalid style %q (use full or short)", raw)
	}
}

type component struct {
	full  string // plural label
	short string
	value int64
}

// Format renders years through seconds in that order. Milliseconds are not
// rendered. Zero components are skipped unless ShowZero is set, and at most
// MaxUnits components are kept. An empty result renders as "0 seconds"
// (or "0s" in short style).
func Format(d duration.Structured, opts Options) string {
	opts = opts.withDefaults()

	comps := [...]component{
		{full: "years", short: "y", value: d.Years},
		{full: "months", short: "mo", value: d.Months},
		{full: "days", short: "d", value: d.Days},
		{full: "hours", short: "h", value: d.Hours},
		{full: "minutes", short: "m", value: d.Minutes},
		{full: "seconds", short: "s", value: d.Seconds},
	}

	parts := make([]string, 0, len(comps))
	for _, c := range comps {
		if len(parts) >= opts.MaxUnits {
			break
		}
		if c.value == 0 && !opts.ShowZero {
			continue
		}
		parts = append(parts, formatUnit(c, opts.Style))
	}

	if len(parts) == 0 {
		if opts.Style == StyleShort {
			return "0s"
		}
		return "0 seconds"
	}
	return strings.Join(parts, opts.Separator)
}

func formatUnit(c component, style Style) string {
	v := strconv.FormatInt(c.value, 10)
	if style == StyleShort {
		return v + c.short
	}
	label := c.full
	if c.value == 1 || c.value == -1 {
		label = strings.TrimSuffix(label, "s")
	}
	return v + " " + label
}
