package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"sgdqbot/internal/transport"
	logx "sgdqbot/pkg/logx"
)

type sent struct {
	to   transport.ChatTarget
	text string
}

type fakeAdapter struct {
	out chan sent
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{out: make(chan sent, 16)} }

func (a *fakeAdapter) Name() string { return "fake" }
func (a *fakeAdapter) Start(ctx context.Context, out chan<- transport.Message) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error { return nil }
func (a *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	a.out <- sent{to: to, text: text}
	return nil
}

func echoDispatch(text string) (string, bool) {
	switch text {
	case ".sgdq":
		return "status", true
	case "boom":
		panic("boom")
	}
	return "", false
}

func msg(target, text string) transport.Message {
	return transport.Message{
		Transport: "fake",
		Target:    transport.ChatTarget{ID: target},
		From:      "viewer",
		Text:      text,
		Received:  time.Now(),
	}
}

func startRouter(t *testing.T, r *Router) (chan transport.Message, func()) {
	t.Helper()
	in := make(chan transport.Message, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, in)
	}()
	return in, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
		}
	}
}

func TestRouterRepliesOnlyToCommands(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	r := New(Config{Workers: 1}, ad, DispatchFunc(echoDispatch), logx.Nop())
	in, stop := startRouter(t, r)
	defer stop()

	in <- msg("#502", "hello there")
	in <- msg("#502", "boom")
	in <- msg("#502", ".sgdq")

	select {
	case got := <-ad.out:
		if got.to.ID != "#502" || got.text != "status" {
			t.Fatalf("sent = %+v, want status to #502", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply for .sgdq")
	}

	select {
	case got := <-ad.out:
		t.Fatalf("unexpected extra reply %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRouterReplyGoesToOriginatingTarget(t *testing.T) {
	t.Parallel()

	ad := newFakeAdapter()
	r := New(Config{Workers: 1}, ad, DispatchFunc(echoDispatch), logx.Nop())
	in, stop := startRouter(t, r)
	defer stop()

	in <- msg("someone", ".sgdq")
	got := <-ad.out
	if got.to.ID != "someone" {
		t.Fatalf("target = %q, want %q", got.to.ID, "someone")
	}
}

func TestRouterDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	block := DispatchFunc(func(text string) (string, bool) {
		once.Do(func() {
			entered <- struct{}{}
			<-release
		})
		return "", false
	})

	r := New(Config{Workers: 1, QueueSize: 1}, newFakeAdapter(), block, logx.Nop())
	in, stop := startRouter(t, r)
	defer stop()
	defer close(release)

	in <- msg("#502", "first")
	<-entered
	in <- msg("#502", "queued")
	in <- msg("#502", "dropped")

	deadline := time.Now().Add(2 * time.Second)
	for r.Dropped() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("Dropped() = %d, want 1", r.Dropped())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSetReplyRate(t *testing.T) {
	t.Parallel()

	r := New(Config{ReplyRatePerSec: 3}, newFakeAdapter(), DispatchFunc(echoDispatch), logx.Nop())
	if got := r.ReplyRate(); got != rate.Limit(3) {
		t.Fatalf("ReplyRate() = %v, want 3", got)
	}
	r.SetReplyRate(0)
	if got := r.ReplyRate(); got != rate.Inf {
		t.Fatalf("ReplyRate() = %v, want Inf", got)
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(ctx context.Context, req *Request) error {
		order = append(order, "handler")
		return nil
	}, mw("a"), mw("b"))
	_ = h(context.Background(), &Request{})

	want := []string{"a", "b", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestNewReqIDUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newReqID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
