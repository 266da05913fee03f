// Package storage persists countdown state across restarts.
//
// It holds:
//   - Resolved targets, keyed by countdown name and tagged with the input
//     fingerprint they were resolved from
//   - Run history (started/completed/stopped records)
//   - Notifier dedup state
package storage
