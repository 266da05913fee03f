// Package duration resolves countdown inputs into a target instant and
// breaks millisecond counts into calendar-style components.
//
// # Inputs
//
// A countdown is described by a Spec, which is one of:
//
//   - Quantity: an amount of a Unit relative to now ("5 minutes")
//   - Target: an absolute instant to count down to
//
// Resolve normalizes both to a Resolution holding the target instant and the
// initial remaining time (negative when the target already passed).
//
// # Decomposition
//
// Decompose uses fixed ratios: 1 year = 365 days and 1 month = 30 days.
// This is an approximation and will diverge from real calendar spans for
// long countdowns. Resolve itself adds months and years with calendar
// arithmetic, so only the displayed breakdown is approximate.
package duration
