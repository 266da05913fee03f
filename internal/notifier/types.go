package notifier

import (
	"context"
	"time"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Notification announces a countdown event.
type Notification struct {
	Name   string
	RunID  string
	Target time.Time
	Text   string
}

// Sink delivers a rendered notification.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

type HistoryItem struct {
	At   time.Time
	Name string
	Text string
}

// NotificationEvent is published on the event bus for notifier lifecycle
// events.
type NotificationEvent struct {
	Name  string    `json:"name"`
	RunID string    `json:"run_id,omitempty"`
	Key   string    `json:"key"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
