// Package router feeds inbound chat lines through a bounded worker pool to
// the command dispatcher and sends replies back through the adapter.
package router

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"sgdqbot/internal/runtime/supervisor"
	"sgdqbot/internal/transport"
	logx "sgdqbot/pkg/logx"
)

const (
	defaultQueueSize = 256
	defaultTimeout   = 15 * time.Second
)

// Dispatcher answers one chat line. ok is false when the line is not a
// command and nothing should be sent.
type Dispatcher interface {
	Dispatch(text string) (reply string, ok bool)
}

// DispatchFunc adapts a plain function to Dispatcher.
type DispatchFunc func(text string) (string, bool)

func (f DispatchFunc) Dispatch(text string) (string, bool) { return f(text) }

type Config struct {
	// Workers defaults to NumCPU, at least 2.
	Workers   int
	QueueSize int
	// ReplyRatePerSec caps replies across all targets; <= 0 means unlimited.
	ReplyRatePerSec int
	// Timeout bounds one request including the send.
	Timeout time.Duration
}

// Request is the unit a worker handles.
type Request struct {
	Msg     transport.Message
	ReqID   string
	Logger  logx.Logger
	Command string
	Reply   string
	Handled bool
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return fallback
}

type Router struct {
	cfg      Config
	adapter  transport.Adapter
	dispatch Dispatcher
	log      logx.Logger

	limiter atomic.Pointer[rate.Limiter]
	dropped atomic.Uint64
	handler HandlerFunc
}

func New(cfg Config, adapter transport.Adapter, dispatch Dispatcher, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
		if cfg.Workers < 2 {
			cfg.Workers = 2
		}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	r := &Router{
		cfg:      cfg,
		adapter:  adapter,
		dispatch: dispatch,
		log:      log.With(logx.String("comp", "router")),
	}
	r.SetReplyRate(cfg.ReplyRatePerSec)
	r.handler = Chain(r.handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cfg.Timeout),
	)
	return r
}

// SetReplyRate swaps the outbound limiter. Requests already waiting keep
// the old one.
func (r *Router) SetReplyRate(perSec int) {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	r.limiter.Store(lim)
}

func (r *Router) ReplyRate() rate.Limit { return r.limiter.Load().Limit() }

// Dropped counts messages discarded because the queue was full.
func (r *Router) Dropped() uint64 { return r.dropped.Load() }

// Run consumes in until ctx is done or in is closed, then waits briefly for
// the workers to drain.
func (r *Router) Run(ctx context.Context, in <-chan transport.Message) error {
	jobs := make(chan *Request, r.cfg.QueueSize)
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)
	for i := 0; i < r.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			return r.work(c, idx, jobs)
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("router started",
		logx.Int("workers", r.cfg.Workers),
		logx.Int("queue_cap", r.cfg.QueueSize),
	)

	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("router stopped", logx.Uint64("dropped", r.dropped.Load()))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			r.enqueue(jobs, msg)
		}
	}
}

func (r *Router) enqueue(jobs chan<- *Request, msg transport.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	rid := newReqID()
	req := &Request{
		Msg:   msg,
		ReqID: rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.String("transport", msg.Transport),
		),
	}
	select {
	case jobs <- req:
	default:
		r.dropped.Add(1)
		r.log.Warn("router busy, message dropped",
			logx.String("target", msg.Target.ID),
			logx.String("from", msg.From),
		)
	}
}

func (r *Router) work(ctx context.Context, idx int, jobs <-chan *Request) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-jobs:
			if !ok {
				return nil
			}
			func() {
				defer func() {
					if p := recover(); p != nil {
						r.log.Error("panic in router job",
							logx.Int("worker", idx),
							logx.Any("panic", p),
							logx.String("stack", string(debug.Stack())),
						)
					}
				}()
				_ = r.handler(ctx, req)
			}()
		}
	}
}

func (r *Router) handle(ctx context.Context, req *Request) error {
	reply, ok := r.dispatch.Dispatch(req.Msg.Text)
	if !ok {
		return nil
	}
	req.Handled = true
	req.Reply = reply
	if f := strings.Fields(req.Msg.Text); len(f) > 0 {
		req.Command = f[0]
	}
	if err := r.limiter.Load().Wait(ctx); err != nil {
		return fmt.Errorf("reply rate: %w", err)
	}
	if err := r.adapter.SendText(ctx, req.Msg.Target, reply); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
