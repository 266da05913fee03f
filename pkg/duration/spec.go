package duration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrInvalidInput is returned when a Spec is neither a valid quantity nor a
// usable instant. Callers match it with errors.Is; the wrapped message
// carries the detail.
var ErrInvalidInput = errors.New("invalid countdown input")

// maxMillis bounds fixed-unit quantities so now+amount stays representable.
const maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// Spec is a countdown input. It is implemented only by Quantity and Target.
type Spec interface {
	fmt.Stringer
	isSpec()
}

// Quantity counts down Amount units from the moment it is resolved.
// Fractional amounts are allowed for units up to Day.
type Quantity struct {
	Amount float64
	Unit   Unit
}

func (Quantity) isSpec() {}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.Amount, 'f', -1, 64) + " " + q.Unit.String()
}

// Target counts down to an absolute instant.
type Target struct {
	At time.Time
}

func (Target) isSpec() {}

func (t Target) String() string {
	return t.At.UTC().Format(time.RFC3339Nano)
}

// Resolution is a Spec normalized against a clock reading.
type Resolution struct {
	// Target is the instant the countdown reaches zero, at millisecond resolution.
	Target time.Time
	// Initial is Target minus the clock reading used to resolve. Negative
	// when the target already passed.
	Initial time.Duration
}

// Elapsed reports whether the target was already reached at resolution time.
func (r Resolution) Elapsed() bool { return r.Initial <= 0 }

// Resolve computes the target instant and initial remaining time for spec
// relative to now. It has no side effects.
func Resolve(spec Spec, now time.Time) (Resolution, error) {
	now = now.Truncate(time.Millisecond)

	var target time.Time
	switch s := spec.(type) {
	case Quantity:
		t, err := s.addTo(now)
		if err != nil {
			return Resolution{}, err
		}
		target = t
	case Target:
		if s.At.IsZero() {
			return Resolution{}, fmt.Errorf("%w: target instant is zero", ErrInvalidInput)
		}
		target = s.At.Truncate(time.Millisecond)
	case nil:
		return Resolution{}, fmt.Errorf("%w: no input", ErrInvalidInput)
	default:
		return Resolution{}, fmt.Errorf("%w: unsupported input %T", ErrInvalidInput, spec)
	}

	// Time.Sub saturates instead of failing; reject spans it cannot hold.
	if target.After(now.Add(math.MaxInt64)) || target.Before(now.Add(math.MinInt64)) {
		return Resolution{}, fmt.Errorf("%w: target %s is too far from now", ErrInvalidInput, target.UTC().Format(time.RFC3339))
	}
	return Resolution{Target: target, Initial: target.Sub(now)}, nil
}

// ResolveAt is Resolve for a Target spec built from at.
func ResolveAt(at, now time.Time) (Resolution, error) {
	return Resolve(Target{At: at}, now)
}

func (q Quantity) addTo(now time.Time) (time.Time, error) {
	if math.IsNaN(q.Amount) || math.IsInf(q.Amount, 0) {
		return time.Time{}, fmt.Errorf("%w: amount %v is not finite", ErrInvalidInput, q.Amount)
	}
	if !q.Unit.Valid() {
		return time.Time{}, fmt.Errorf("%w: unit %s is not supported", ErrInvalidInput, q.Unit)
	}

	if q.Unit.calendar() {
		if q.Amount != math.Trunc(q.Amount) {
			return time.Time{}, fmt.Errorf("%w: %s amounts must be whole numbers, got %v", ErrInvalidInput, q.Unit, q.Amount)
		}
		// AddDate overflows silently; keep it well inside the representable range.
		if math.Abs(q.Amount) > 100_000 {
			return time.Time{}, fmt.Errorf("%w: %v %ss is out of range", ErrInvalidInput, q.Amount, q.Unit)
		}
		n := int(q.Amount)
		if q.Unit == Year {
			return now.AddDate(n, 0, 0), nil
		}
		return now.AddDate(0, n, 0), nil
	}

	ms := q.Amount * float64(q.Unit.fixed()/time.Millisecond)
	if math.Abs(ms) > maxMillis {
		return time.Time{}, fmt.Errorf("%w: %v %ss is out of range", ErrInvalidInput, q.Amount, q.Unit)
	}
	return now.Add(time.Duration(math.Round(ms)) * time.Millisecond), nil
}
