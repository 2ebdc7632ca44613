// Package feed serves the current schedule snapshot over HTTP: an
// iCalendar feed, JSON documents and a websocket that pushes the current
// and next run after every refresh that changed the schedule.
//
// Prefer a loopback address; the feed has no authentication.
package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"sgdqbot/internal/eventbus"
	"sgdqbot/internal/refresh"
	"sgdqbot/internal/runtime/supervisor"
	"sgdqbot/internal/schedule"
	logx "sgdqbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8089"

const msgNotLoaded = "schedule not loaded yet"

type Config struct {
	Enabled bool
	Addr    string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Option func(*Service)

// WithBus enables websocket pushes on refresh events.
func WithBus(bus eventbus.Bus) Option { return func(s *Service) { s.bus = bus } }

// WithClock overrides time.Now for /now and pushes.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type Service struct {
	mu    sync.Mutex
	cfg   Config
	sup   *supervisor.Supervisor
	bound string

	log     logx.Logger
	store   *schedule.Store
	bus     eventbus.Bus
	now     func() time.Time
	hub     *hub
	handler http.Handler
}

func New(cfg Config, store *schedule.Store, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "feed"))
	s := &Service{
		cfg:   cfg,
		log:   log,
		store: store,
		now:   time.Now,
		hub:   newHub(log),
	}
	for _, o := range opts {
		o(s)
	}
	s.handler = s.routes()
	return s
}

// Handler is the feed's HTTP handler, usable without Start.
func (s *Service) Handler() http.Handler { return s.handler }

// Addr is the bound listen address while serving, empty otherwise.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start serves in the background when enabled. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	sup := supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		// The feed is optional; never take the bot down with it.
		supervisor.WithCancelOnError(false),
	)
	sup.GoRestart("http.serve", s.serveOnce,
		supervisor.WithPublishFirstError(true),
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
	if s.bus != nil {
		events, unsubscribe := s.bus.Subscribe(16)
		sup.Go0("feed.push", func(c context.Context) {
			defer unsubscribe()
			s.push(c, events)
		})
	}
	s.sup = sup
}

// Stop closes websocket clients and shuts the server down, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	s.hub.closeAll()
	err := sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	s.log.Info("feed stopped")
	return nil
}

// Reconfigure applies cfg, starting, stopping or restarting the server as
// needed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			_ = s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case needsRestart(prev, cfg):
		_ = s.Stop(ctx)
		s.Start(ctx)
	}
}

func needsRestart(a, b Config) bool {
	return listenAddr(a.Addr) != listenAddr(b.Addr) ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

func listenAddr(addr string) string {
	if addr = strings.TrimSpace(addr); addr == "" {
		return DefaultAddr
	}
	return addr
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	addr := listenAddr(cur.Addr)
	if !isLoopbackAddr(addr) {
		s.log.Warn("feed listening on non-loopback addr without auth", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.log.Error("feed listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cur.ReadTimeout,
		WriteTimeout:      cur.WriteTimeout,
		IdleTimeout:       cur.IdleTimeout,
	}

	s.mu.Lock()
	s.bound = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("feed listening", logx.String("addr", ln.Addr().String()))

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = srv.Shutdown(sctx)
			cancel()
		case <-done:
		}
	}()

	err = srv.Serve(ln)
	close(done)

	s.mu.Lock()
	s.bound = ""
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

// push forwards changed refreshes to websocket clients.
func (s *Service) push(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.TypeScheduleRefreshed {
				continue
			}
			if res, ok := e.Data.(refresh.Result); ok && !res.Changed {
				continue
			}
			msg, ok := s.nowMessage()
			if !ok {
				continue
			}
			if n := s.hub.broadcast(msg); n > 0 {
				s.log.Debug("feed pushed", logx.Int("clients", n))
			}
		}
	}
}

func (s *Service) nowMessage() ([]byte, bool) {
	sched, ok := s.store.Current()
	if !ok {
		return nil, false
	}
	b, err := json.Marshal(currentJSON(sched, s.now()))
	if err != nil {
		s.log.Error("feed encode failed", logx.Err(err))
		return nil, false
	}
	return b, true
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.withSnapshot(func(w http.ResponseWriter, r *http.Request, _ schedule.Snapshot) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("GET /schedule.ics", s.withSnapshot(func(w http.ResponseWriter, r *http.Request, snap schedule.Snapshot) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		if err := writeICS(w, snap); err != nil {
			s.log.Warn("ics write failed", logx.Err(err))
		}
	}))
	mux.HandleFunc("GET /schedule.json", s.withSnapshot(func(w http.ResponseWriter, r *http.Request, snap schedule.Snapshot) {
		s.writeJSON(w, snapshotJSON(snap))
	}))
	mux.HandleFunc("GET /now", s.withSnapshot(func(w http.ResponseWriter, r *http.Request, snap schedule.Snapshot) {
		s.writeJSON(w, currentJSON(snap.Schedule, s.now()))
	}))
	mux.HandleFunc("GET /ws", s.withSnapshot(func(w http.ResponseWriter, r *http.Request, snap schedule.Snapshot) {
		b, err := json.Marshal(currentJSON(snap.Schedule, s.now()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.hub.serve(w, r, b)
	}))
	return mux
}

func (s *Service) withSnapshot(fn func(http.ResponseWriter, *http.Request, schedule.Snapshot)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.store.Snapshot()
		if !ok {
			http.Error(w, msgNotLoaded, http.StatusServiceUnavailable)
			return
		}
		fn(w, r, snap)
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("json write failed", logx.Err(err))
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
