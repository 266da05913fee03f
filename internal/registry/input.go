package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"countdown/pkg/duration"
)

// Input is the user-facing form of a countdown. Exactly one of In,
// Amount+Unit, At or Next is set.
type Input struct {
	In string // quantity text: "5 minutes", "90s", "1h30m"

	Amount    float64
	Unit      string
	HasAmount bool

	At   string // instant text
	Next string // cron expression
}

// IsCron reports whether the target comes from a cron expression.
func (in Input) IsCron() bool { return strings.TrimSpace(in.Next) != "" }

// Fingerprint identifies the input, normalised, together with anything that
// changes how it resolves. Two inputs with equal fingerprints resolve to the
// same target when resolved at the same instant.
//
// Quantities are normalised, so "10m", "10 minutes" and amount 10 with unit
// "min" share a fingerprint.
func (in Input) Fingerprint(loc *time.Location) string {
	switch {
	case strings.TrimSpace(in.In) != "":
		if q, err := duration.ParseQuantity(in.In); err == nil {
			return "in=" + q.String()
		}
		return "in=" + strings.ToLower(strings.Join(strings.Fields(in.In), " "))
	case in.HasAmount:
		if u, err := duration.ParseUnit(in.Unit); err == nil {
			return "in=" + duration.Quantity{Amount: in.Amount, Unit: u}.String()
		}
		return "in=" + strconv.FormatFloat(in.Amount, 'f', -1, 64) + " " + strings.ToLower(strings.TrimSpace(in.Unit))
	case strings.TrimSpace(in.At) != "":
		return "at=" + strings.TrimSpace(in.At) + " tz=" + loc.String()
	case in.IsCron():
		return "next=" + strings.Join(strings.Fields(in.Next), " ") + " tz=" + loc.String()
	default:
		return ""
	}
}

// spec converts the input to a duration.Spec. Cron inputs are resolved to
// their next occurrence after now.
func (in Input) spec(parser cron.Parser, now time.Time, loc *time.Location) (duration.Spec, error) {
	switch {
	case strings.TrimSpace(in.In) != "":
		q, err := duration.ParseQuantity(in.In)
		if err != nil {
			return nil, err
		}
		return q, nil
	case in.HasAmount:
		u, err := duration.ParseUnit(in.Unit)
		if err != nil {
			return nil, err
		}
		return duration.Quantity{Amount: in.Amount, Unit: u}, nil
	case strings.TrimSpace(in.At) != "":
		at, err := duration.ParseInstantIn(in.At, loc)
		if err != nil {
			return nil, err
		}
		return duration.Target{At: at}, nil
	case in.IsCron():
		sched, err := parser.Parse(strings.TrimSpace(in.Next))
		if err != nil {
			return nil, fmt.Errorf("%w: cron %q: %v", duration.ErrInvalidInput, in.Next, err)
		}
		next := sched.Next(now.In(loc))
		if next.IsZero() {
			return nil, fmt.Errorf("%w: cron %q never fires", duration.ErrInvalidInput, in.Next)
		}
		return duration.Target{At: next}, nil
	default:
		return nil, fmt.Errorf("%w: empty input", duration.ErrInvalidInput)
	}
}

func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Check validates in without starting anything.
func Check(in Input, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	spec, err := in.spec(newParser(), now, loc)
	if err != nil {
		return err
	}
	_, err = duration.Resolve(spec, now)
	return err
}
