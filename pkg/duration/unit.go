package duration

import (
	"fmt"
	"strings"
	"time"
)

// Unit is a countdown quantity unit. Weeks are deliberately absent.
type Unit int

const (
	Millisecond Unit = iota + 1
	Second
	Minute
	Hour
	Day
	Month
	Year
)

// Fixed ratios used by Decompose. Month and year are approximations.
const (
	MillisPerSecond int64 = 1000
	MillisPerMinute       = 60 * MillisPerSecond
	MillisPerHour         = 60 * MillisPerMinute
	MillisPerDay          = 24 * MillisPerHour
	MillisPerMonth        = 30 * MillisPerDay
	MillisPerYear         = 365 * MillisPerDay
)

func (u Unit) String() string {
	switch u {
	case Millisecond:
		return "millisecond"
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Valid reports whether u is one of the supported units.
func (u Unit) Valid() bool { return u >= Millisecond && u <= Year }

// calendar reports whether u must be added with calendar arithmetic.
func (u Unit) calendar() bool { return u == Month || u == Year }

// fixed returns the fixed length of one u for sub-month units.
func (u Unit) fixed() time.Duration {
	switch u {
	case Millisecond:
		return time.Millisecond
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return 0
	}
}

var unitAliases = map[string]Unit{
	"ms": Millisecond, "msec": Millisecond, "millisecond": Millisecond, "milliseconds": Millisecond,
	"s": Second, "sec": Second, "secs": Second, "second": Second, "seconds": Second,
	"m": Minute, "min": Minute, "mins": Minute, "minute": Minute, "minutes": Minute,
	"h": Hour, "hr": Hour, "hrs": Hour, "hour": Hour, "hours": Hour,
	"d": Day, "day": Day, "days": Day,
	"mo": Month, "mon": Month, "month": Month, "months": Month,
	"y": Year, "yr": Year, "yrs": Year, "year": Year, "years": Year,
}

// ParseUnit parses a unit name (singular, plural or short form, any case).
func ParseUnit(raw string) (Unit, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if u, ok := unitAliases[s]; ok {
		return u, nil
	}
	switch s {
	case "w", "wk", "week", "weeks":
		return 0, fmt.Errorf("%w: unit %q is not supported", ErrInvalidInput, raw)
	}
	return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidInput, raw)
}
