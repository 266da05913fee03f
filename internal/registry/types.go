package registry

import (
	"time"

	"countdown/internal/clock"
	"countdown/internal/countdown"
	"countdown/internal/eventbus"
	"countdown/internal/storage"
	"countdown/pkg/duration"
	"countdown/pkg/logx"
)

// Entry is a named countdown definition.
type Entry struct {
	Name  string
	Input Input

	// Repeat re-arms a cron countdown for its next occurrence on completion.
	Repeat bool
	Notify bool
}

type Options struct {
	Clock    clock.Clock
	Period   time.Duration
	Location *time.Location
	Logger   logx.Logger
	Bus      eventbus.Bus
	Store    storage.Store // optional
}

// Event is the payload of every countdown.* bus event.
type Event struct {
	Name      string              `json:"name"`
	RunID     string              `json:"run_id"`
	State     string              `json:"state"`
	Target    time.Time           `json:"target"`
	Initial   time.Duration       `json:"initial"`
	Remaining time.Duration       `json:"remaining"`
	Duration  duration.Structured `json:"duration"`
	Tick      uint64              `json:"tick"`
	Notify    bool                `json:"notify"`

	// Elapsed is set on a completion reported at start because the target
	// had already passed.
	Elapsed bool   `json:"elapsed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status describes one registered countdown.
type Status struct {
	Name        string
	RunID       string
	Fingerprint string
	Repeat      bool
	Snapshot    countdown.Snapshot
}
