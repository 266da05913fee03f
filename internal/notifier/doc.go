// Package notifier delivers countdown completion notifications.
//
// Notifications flow through a bounded queue to a small supervised worker
// pool. Workers share a token-bucket rate limit and retry failed sends with
// jittered exponential backoff. Identical notifications (same countdown run)
// are suppressed for a dedup window, optionally persisted through storage so
// a restart does not re-announce a run that already fired.
//
// Delivery is delegated to a Sink (log or writer).
package notifier
