// Package debugsrv serves countdown status and, optionally, pprof over HTTP.
package debugsrv

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"countdown/internal/registry"
	rtsup "countdown/internal/runtime/supervisor"
	"countdown/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// Source reports the countdowns served at /countdowns.
type Source interface {
	Snapshot() []registry.Status
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	src Source

	addr     string // bound address while serving
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, src Source, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, src: src, log: log.With(logx.String("comp", "debugsrv"))}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr returns the bound address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg and starts, stops or restarts the server as
// needed. Safe to call during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		// If stopping, wait for it to finish before restarting.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return
			}
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		// The debug server is optional; it never takes the app down.
		s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
		sup := s.sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
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
	sup := s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.sup = nil
		s.addr = ""
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("debug server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	// Refuse accidental public exposure without auth.
	if !cur.AllowInsecure && cur.Token == "" && !IsLoopbackAddr(addr) {
		s.log.Error("debug server refused to start: non-loopback addr requires token or allow_insecure",
			logx.String("addr", addr))
		return errors.New("debug server refused to start: insecure bind")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.log.Error("debug server listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}

	srv := &http.Server{
		Handler:           s.handler(cur),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cur.ReadTimeout,
		IdleTimeout:       cur.IdleTimeout,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	bound := ln.Addr().String()
	s.mu.Lock()
	s.addr = bound
	s.mu.Unlock()
	s.log.Info("debug server started",
		logx.String("addr", bound),
		logx.Bool("pprof", cur.Pprof),
		logx.Bool("token_set", cur.Token != ""),
	)

	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("debug server exited unexpectedly")
	}
	return err
}

func (s *Service) handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cfg.Token, h) }

	mux.HandleFunc("/healthz", wrap(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/countdowns", wrap(s.countdowns))

	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	}
	return mux
}

type countdownView struct {
	Name        string    `json:"name"`
	RunID       string    `json:"run_id"`
	State       string    `json:"state"`
	Target      time.Time `json:"target"`
	RemainingMS int64     `json:"remaining_ms"`
	Tick        uint64    `json:"tick"`
	Repeat      bool      `json:"repeat,omitempty"`
}

func (s *Service) countdowns(w http.ResponseWriter, r *http.Request) {
	out := []countdownView{}
	if s.src != nil {
		for _, st := range s.src.Snapshot() {
			out = append(out, countdownView{
				Name:        st.Name,
				RunID:       st.RunID,
				State:       st.Snapshot.State.String(),
				Target:      st.Snapshot.Target,
				RemainingMS: st.Snapshot.Remaining.Milliseconds(),
				Tick:        st.Snapshot.Tick,
				Repeat:      st.Repeat,
			})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Debug("encode countdowns failed", logx.Err(err))
	}
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) {
				got = strings.TrimSpace(strings.TrimPrefix(ah, p))
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

// IsLoopbackAddr reports whether host:port names a loopback host. An empty
// host means all interfaces and is not loopback.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
