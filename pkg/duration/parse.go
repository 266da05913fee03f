package duration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reQuantity = regexp.MustCompile(`^([+-]?\d+(?:\.\d+)?)\s*([A-Za-z]+)$`)
	reDigits   = regexp.MustCompile(`^-?\d+$`)
)

// Shorter all-digit values are more likely mistyped dates than instants in
// early 1970.
const minTimestampDigits = 10

// Layouts tried for instants without an explicit offset. They are
// interpreted in the caller's location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant parses an absolute time in the local time zone.
// See ParseInstantIn.
func ParseInstant(raw string) (time.Time, error) {
	return ParseInstantIn(raw, time.Local)
}

// ParseInstantIn parses an absolute time value:
//   - RFC 3339 / ISO-8601 with offset: "2026-01-02T15:04:05Z", "2026-01-02T15:04:05.250+07:00"
//   - Local date-time: "2026-01-02T15:04:05", "2026-01-02 15:04", "2026-01-02"
//   - Compact date: "20260102"
//   - Unix timestamp in milliseconds, at least 10 digits: "1767225600000"
//
// Values without an offset are interpreted in loc (time.Local when nil).
func ParseInstantIn(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty time value", ErrInvalidInput)
	}
	if loc == nil {
		loc = time.Local
	}

	if reDigits.MatchString(s) {
		digits := strings.TrimPrefix(s, "-")
		if len(digits) == len(s) && len(digits) == 8 {
			if t, err := time.ParseInLocation("20060102", s, loc); err == nil {
				return t, nil
			}
		}
		if len(digits) < minTimestampDigits {
			return time.Time{}, fmt.Errorf("%w: ambiguous numeric time value %q (unix milliseconds need at least %d digits)", ErrInvalidInput, raw, minTimestampDigits)
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidInput, raw, err)
		}
		return time.UnixMilli(ms), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time value %q", ErrInvalidInput, raw)
}

// ParseQuantity parses "5 minutes", "5m", "1.5h" or a Go duration such as
// "1h30m" (normalized to milliseconds). Non-zero Go durations shorter than a
// millisecond are rejected.
func ParseQuantity(raw string) (Quantity, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Quantity{}, fmt.Errorf("%w: empty quantity", ErrInvalidInput)
	}
	if m := reQuantity.FindStringSubmatch(s); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Quantity{}, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, m[1], err)
		}
		unit, uerr := ParseUnit(m[2])
		if uerr == nil {
			return Quantity{Amount: amount, Unit: unit}, nil
		}
		// Units only time.ParseDuration knows ("500us") fall through.
		if _, derr := time.ParseDuration(s); derr != nil {
			return Quantity{}, uerr
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: invalid quantity %q", ErrInvalidInput, raw)
	}
	if d != 0 && d.Abs() < time.Millisecond {
		return Quantity{}, fmt.Errorf("%w: quantity %q is below millisecond resolution", ErrInvalidInput, raw)
	}
	return Quantity{Amount: float64(d) / float64(time.Millisecond), Unit: Millisecond}, nil
}

// ParseSpec parses either a quantity ("5 minutes", "2h30m") or an instant
// (see ParseInstantIn). Quantities win when both could apply.
func ParseSpec(raw string, loc *time.Location) (Spec, error) {
	q, qerr := ParseQuantity(raw)
	if qerr == nil {
		return q, nil
	}
	at, ierr := ParseInstantIn(raw, loc)
	if ierr == nil {
		return Target{At: at}, nil
	}
	// Prefer the quantity error when the input looked like one (e.g. "2 weeks").
	if reQuantity.MatchString(strings.TrimSpace(raw)) {
		return nil, qerr
	}
	return nil, errors.Join(qerr, ierr)
}
