package duration

import "time"

// Structured is a millisecond count split into components using the fixed
// ratios MillisPerYear and MillisPerMonth. All fields are always present.
type Structured struct {
	Years        int64 `json:"years"`
	Months       int64 `json:"months"`
	Days         int64 `json:"days"`
	Hours        int64 `json:"hours"`
	Minutes      int64 `json:"minutes"`
	Seconds      int64 `json:"seconds"`
	Milliseconds int64 `json:"milliseconds"`
}

// Decompose splits ms into components, largest unit first.
// Negative input is treated as zero.
func Decompose(ms int64) Structured {
	if ms <= 0 {
		return Structured{}
	}
	var s Structured
	s.Years, ms = ms/MillisPerYear, ms%MillisPerYear
	s.Months, ms = ms/MillisPerMonth, ms%MillisPerMonth
	s.Days, ms = ms/MillisPerDay, ms%MillisPerDay
	s.Hours, ms = ms/MillisPerHour, ms%MillisPerHour
	s.Minutes, ms = ms/MillisPerMinute, ms%MillisPerMinute
	s.Seconds, ms = ms/MillisPerSecond, ms%MillisPerSecond
	s.Milliseconds = ms
	return s
}

// DecomposeDuration decomposes d truncated to milliseconds.
func DecomposeDuration(d time.Duration) Structured {
	return Decompose(d.Milliseconds())
}

// TotalMilliseconds reassembles the millisecond count with the same ratios
// Decompose uses.
func (s Structured) TotalMilliseconds() int64 {
	return s.Years*MillisPerYear +
		s.Months*MillisPerMonth +
		s.Days*MillisPerDay +
		s.Hours*MillisPerHour +
		s.Minutes*MillisPerMinute +
		s.Seconds*MillisPerSecond +
		s.Milliseconds
}

// Duration is TotalMilliseconds as a time.Duration.
func (s Structured) Duration() time.Duration {
	return time.Duration(s.TotalMilliseconds()) * time.Millisecond
}

func (s Structured) IsZero() bool { return s == Structured{} }
