package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"countdown/internal/eventbus"
	rtsup "countdown/internal/runtime/supervisor"
	"countdown/internal/storage"
	"countdown/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historyCap = 300

type job struct {
	n        Notification
	dedupKey string
}

type dedupWrite struct {
	key   string
	until time.Time
}

// Service is an async notification pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	sink  Sink
	bus   eventbus.Bus
	store storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue     chan job
	persistCh chan dedupWrite
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping

	dmu   sync.Mutex
	dedup map[string]time.Time // key -> suppress until

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds a stopped service. store may be nil; it is only used when
// PersistDedup is set.
func New(cfg Config, sink Sink, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		sink:  sink,
		log:   log.With(logx.String("comp", "notifier")),
		bus:   bus,
		store: store,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps limits and windows. Worker count and queue size take effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	s.cfg = cfg
	// burst = rate so short spikes of completions go out together.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the workers. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}
	// Notification failures must not take the app down.
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup, q, pch, workers := s.sup, s.queue, s.persistCh, s.cfg.Workers
	s.mu.Unlock()

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch)
			return s.exitErr(c, "persist loop")
		})
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return s.exitErr(c, "worker")
		})
	}
	s.log.Debug("notifier started", logx.Int("workers", workers))
}

// exitErr turns an unexpected loop return into a restartable error.
// Returns nil on shutdown.
func (s *Service) exitErr(ctx context.Context, what string) error {
	s.mu.Lock()
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if stopping || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("notifier %s exited unexpectedly", what)
}

// Stop stops intake and drains the queue until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Notify calls finish before the queue closes.
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Notify enqueues n. Suppressed duplicates return nil.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q, pch := s.queue, s.persistCh
	window, maxEntries, persist := s.cfg.DedupWindow, s.cfg.DedupMaxEntries, s.cfg.PersistDedup
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	if window > 0 && !s.dedupAllow(ctx, key, window, maxEntries, persist, pch) {
		s.publish("notifier.deduped", n, key, nil)
		return nil
	}

	select {
	case q <- job{n: n, dedupKey: key}:
		s.publish("notifier.queued", n, key, nil)
		return nil
	default:
		s.publish("notifier.dropped", n, key, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, n Notification, key string, err error) {
	now := time.Now()
	ev := NotificationEvent{Name: n.Name, RunID: n.RunID, Key: key, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// Snapshot returns recently delivered notifications, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(n Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Name: n.Name, Text: n.Text})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := s.store.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, sink := s.cfg, s.limiter, s.sink
	s.mu.Unlock()

	if sink == nil || j.n.Text == "" {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sink.Send(callCtx, j.n)
		cancel()
		if err == nil {
			s.appendHistory(j.n)
			s.publish("notifier.sent", j.n, j.dedupKey, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed",
			logx.String("name", j.n.Name),
			logx.Err(err),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
		)
		if attempt == maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.log.Warn("notification failed", logx.String("name", j.n.Name), logx.Err(lastErr))
	s.publish("notifier.failed", j.n, j.dedupKey, lastErr)
}

// dedupKey identifies one countdown run. Without a run ID the text is used.
func dedupKey(n Notification) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.Name))
	_, _ = h.Write([]byte("|"))
	if n.RunID != "" {
		_, _ = h.Write([]byte(n.RunID))
	} else {
		_, _ = h.Write([]byte(n.Text))
	}
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(ctx context.Context, key string, window time.Duration, maxEntries int, persist bool, pch chan dedupWrite) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	// Cross-restart check.
	if persist && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	until := now.Add(window)
	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	// Evict earliest expiries until within cap.
	for len(s.dedup) > maxEntries {
		var minKey string
		var minT time.Time
		for k, u := range s.dedup {
			if minKey == "" || u.Before(minT) {
				minKey, minT = k, u
			}
		}
		delete(s.dedup, minKey)
	}
	s.dmu.Unlock()

	if pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
