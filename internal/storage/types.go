package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (json snapshot + jsonl)
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// TargetRecord is a resolved countdown target. A record is reused on restart
// only while Fingerprint still matches the configured input, so relative
// inputs ("in: 10m") keep their original target instead of moving forward.
type TargetRecord struct {
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	Target      time.Time `json:"target"`
	ResolvedAt  time.Time `json:"resolved_at"`
	RunID       string    `json:"run_id"`
}

// HistoryEntry records a countdown lifecycle event.
type HistoryEntry struct {
	At          time.Time `json:"at"`
	Name        string    `json:"name"`
	RunID       string    `json:"run_id"`
	Event       string    `json:"event"`
	Target      time.Time `json:"target"`
	InitialMS   int64     `json:"initial_ms"`
	RemainingMS int64     `json:"remaining_ms"`
	Error       string    `json:"error,omitempty"`
}
