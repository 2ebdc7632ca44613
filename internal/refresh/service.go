// Package refresh keeps the schedule store current by fetching and parsing
// the schedule page on an interval.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"

	"sgdqbot/internal/eventbus"
	"sgdqbot/internal/runtime/supervisor"
	"sgdqbot/internal/schedule"
	"sgdqbot/pkg/logx"
)

var (
	ErrRunning = errors.New("refresh: already running")
	ErrStopped = errors.New("refresh: service stopped")
)

type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type Parser interface {
	ParseBytes(b []byte) (*schedule.Schedule, error)
}

// Result describes one refresh cycle.
type Result struct {
	Attempt uint64
	Started time.Time
	Took    time.Duration
	Bytes   int
	Runs    int
	// Version is the store version published by this cycle, zero on failure.
	Version uint64
	// Changed is false when the page body matched the previous success.
	Changed bool
	Err     error
}

func (r Result) OK() bool { return r.Err == nil }

// Observer is told about every cycle, success or failure. It runs on the
// loop goroutine and must not block.
type Observer func(Result)

type Option func(*Service)

func WithLogger(log logx.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

func WithObserver(fn Observer) Option {
	return func(s *Service) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// Service is the only writer of its Store.
type Service struct {
	store *schedule.Store
	fetch Fetcher
	parse Parser

	log       logx.Logger
	bus       eventbus.Bus
	observers []Observer

	cycleMu  sync.Mutex
	attempts atomic.Uint64
	lastHash atomic.Uint64

	mu       sync.Mutex
	interval Interval
	sup      *supervisor.Supervisor
	stopped  bool
	wake     chan struct{}
}

func New(store *schedule.Store, fetch Fetcher, parse Parser, interval Interval, opts ...Option) *Service {
	s := &Service{
		store:    store,
		fetch:    fetch,
		parse:    parse,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("comp", "refresh"))
	return s
}

// Start runs the first cycle right away, then one cycle per interval,
// measured from the end of the previous cycle.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return ErrStopped
	case s.sup != nil:
		return ErrRunning
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.GoRestart("refresh.loop", s.loop, supervisor.WithPublishFirstError(true))
	s.log.Info("refresh started", logx.String("interval", s.interval.String()))
	return nil
}

// Stop cancels the loop and waits for it, bounded by ctx. A cycle in
// flight is canceled through its context.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.stopped = true
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	// Loop failures were already reported per cycle; only a missed deadline matters here.
	if err := sup.Stop(ctx); errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// SetInterval replaces the interval. A pending wait is re-armed from now.
func (s *Service) SetInterval(iv Interval) {
	if iv.IsZero() {
		return
	}
	s.mu.Lock()
	changed := iv.Expr != s.interval.Expr
	s.interval = iv
	s.mu.Unlock()
	if !changed {
		return
	}
	s.log.Info("refresh interval changed", logx.String("interval", iv.String()))
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) Interval() Interval {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Service) loop(ctx context.Context) error {
	for {
		s.RunOnce(ctx)
		if !s.sleep(ctx) {
			return nil
		}
	}
}

// sleep waits for the next due time. It reports false when ctx ends.
// fallbackWait bounds the pause when an interval yields no future tick.
const fallbackWait = 60 * time.Second

func (s *Service) sleep(ctx context.Context) bool {
	for {
		now := time.Now()
		iv := s.Interval()
		next := iv.Next(now)
		d := next.Sub(now)
		if next.IsZero() || d <= 0 {
			s.log.Warn("interval has no future tick",
				logx.String("interval", iv.String()),
				logx.Duration("wait", fallbackWait))
			d = fallbackWait
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-s.wake:
			t.Stop()
		case <-t.C:
			return true
		}
	}
}

// RunOnce performs one fetch, parse and publish. Failures, panics
// included, are returned in the Result and leave the store untouched.
func (s *Service) RunOnce(ctx context.Context) (res Result) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	res = Result{Attempt: s.attempts.Add(1), Started: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("refresh: panic: %v", r)
			res.Version = 0
		}
		res.Took = time.Since(res.Started)
		s.report(res)
	}()

	body, err := s.fetch.Fetch(ctx)
	if err != nil {
		res.Err = fmt.Errorf("fetch: %w", err)
		return res
	}
	res.Bytes = len(body)

	sched, err := s.parse.ParseBytes(body)
	if err != nil {
		res.Err = fmt.Errorf("parse: %w", err)
		return res
	}
	res.Runs = sched.Len()

	h := xxh3.Hash(body)
	res.Changed = s.lastHash.Swap(h) != h
	res.Version = s.store.Publish(sched)
	return res
}

func (s *Service) report(res Result) {
	if res.OK() {
		s.log.Info("schedule refreshed",
			logx.Uint64("attempt", res.Attempt),
			logx.Int("runs", res.Runs),
			logx.String("bytes", humanize.Bytes(uint64(res.Bytes))),
			logx.Bool("changed", res.Changed),
			logx.Uint64("version", res.Version),
			logx.Duration("duration", res.Took),
		)
	} else {
		s.log.Warn("schedule refresh failed",
			logx.Uint64("attempt", res.Attempt),
			logx.Duration("duration", res.Took),
			logx.Err(res.Err),
		)
	}

	for _, fn := range s.observers {
		fn(res)
	}
	if s.bus != nil {
		typ := eventbus.TypeScheduleRefreshed
		if !res.OK() {
			typ = eventbus.TypeRefreshFailed
		}
		s.bus.Publish(eventbus.Event{Type: typ, Time: res.Started.Add(res.Took), Data: res})
	}
}
