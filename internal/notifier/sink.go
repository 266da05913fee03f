package notifier

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"countdown/pkg/duration"
	"countdown/pkg/durfmt"
	"countdown/pkg/logx"
)

// LogSink writes notifications to a logger at info level.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Send(ctx context.Context, n Notification) error {
	_ = ctx
	s.Log.Info(n.Text,
		logx.String("countdown", n.Name),
		logx.String("run_id", n.RunID),
		logx.Time("target", n.Target),
	)
	return nil
}

// WriterSink writes one line per notification to W.
type WriterSink struct {
	mu sync.Mutex
	W  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{W: w} }

func (s *WriterSink) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.W, n.Text)
	return err
}

// CompletionText renders the message sent when a countdown reaches zero,
// e.g. "tea: finished after 4 minutes".
func CompletionText(name string, initial time.Duration, opts durfmt.Options) string {
	return fmt.Sprintf("%s: finished after %s", name, durfmt.Format(duration.DecomposeDuration(initial), opts))
}
