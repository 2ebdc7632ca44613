// Package irc is the IRC chat adapter.
package irc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"

	"sgdqbot/internal/runtime/supervisor"
	"sgdqbot/internal/transport"
	"sgdqbot/pkg/logx"
)

const (
	name = "irc"
	// lineLimit keeps PRIVMSG lines well under the 512-byte protocol limit
	// once the server adds our prefix.
	lineLimit = 400
)

type Config struct {
	// Server is host:port.
	Server   string
	Channels []string
	Nick     string
	User     string
	Password string
	TLS      bool
}

type Adapter struct {
	cfg Config
	log logx.Logger

	mu   sync.Mutex
	conn *ircevent.Connection
	sup  *supervisor.Supervisor

	out     atomic.Pointer[chan<- transport.Message]
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Server) == "" {
		return nil, errors.New("irc: server is empty")
	}
	if strings.TrimSpace(cfg.Nick) == "" {
		return nil, errors.New("irc: nick is empty")
	}
	return &Adapter{cfg: cfg, log: log.With(logx.String("comp", "irc"))}, nil
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)

	user := a.cfg.User
	if user == "" {
		user = a.cfg.Nick
	}
	conn := &ircevent.Connection{
		Server:      a.cfg.Server,
		Nick:        a.cfg.Nick,
		User:        user,
		RealName:    "SGDQ schedule bot",
		Password:    a.cfg.Password,
		UseTLS:      a.cfg.TLS,
		QuitMessage: "schedule bot shutting down",
	}
	conn.AddConnectCallback(func(ircmsg.Message) {
		for _, ch := range a.cfg.Channels {
			if err := conn.Join(ch); err != nil {
				a.log.Warn("join failed", logx.String("channel", ch), logx.Err(err))
			}
		}
		a.log.Info("connected", logx.String("server", a.cfg.Server), logx.Strings("channels", a.cfg.Channels))
	})
	conn.AddCallback("PRIVMSG", func(e ircmsg.Message) {
		if msg, ok := toMessage(e.Source, e.Params); ok {
			a.offer(msg)
		}
	})
	a.conn = conn

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	a.sup.Go0("irc.quit_on_cancel", func(c context.Context) {
		<-c.Done()
		conn.Quit()
	})
	// Loop reconnects on its own and returns only after Quit or a fatal
	// error, so an early return is restarted.
	a.sup.GoRestart("irc.session", func(c context.Context) error {
		if err := conn.Connect(); err != nil {
			return err
		}
		conn.Loop()
		return nil
	},
		supervisor.WithRestartBackoff(2*time.Second, 2*time.Minute),
		supervisor.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_messages", a.dropped.Load()))
	if err := sup.Stop(ctx); errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("irc stop timed out", logx.Err(err))
	}
	return nil
}

func (a *Adapter) offer(msg transport.Message) {
	p := a.out.Load()
	if p == nil {
		return
	}
	select {
	case *p <- msg:
	default:
		if a.dropped.Add(1)%50 == 1 {
			a.log.Warn("incoming message dropped (router busy)", logx.Uint64("total", a.dropped.Load()))
		}
	}
}

// SendText sends text as one or more PRIVMSG lines.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return errors.New("irc: not started")
	}
	for _, line := range splitLines(text, lineLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.Privmsg(to.ID, line); err != nil {
			return err
		}
	}
	return nil
}

// toMessage maps a PRIVMSG to a transport message. Channel messages are
// answered in the channel, private ones to the sender.
func toMessage(source string, params []string) (transport.Message, bool) {
	if len(params) < 2 {
		return transport.Message{}, false
	}
	nick, _, _ := strings.Cut(source, "!")
	target := params[0]
	if !isChannel(target) {
		target = nick
	}
	if target == "" {
		return transport.Message{}, false
	}
	return transport.Message{
		Transport: name,
		Target:    transport.ChatTarget{ID: target},
		From:      nick,
		Text:      params[1],
		Received:  time.Now(),
	}, true
}

func isChannel(s string) bool {
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "&")
}

// splitLines breaks text on newlines, then cuts long lines at the last
// space before limit bytes without splitting a UTF-8 sequence.
func splitLines(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > limit {
			cut := limit
			for cut > 0 && !startsRune(line[cut]) {
				cut--
			}
			if sp := strings.LastIndexByte(line[:cut], ' '); sp > limit/2 {
				cut = sp
			}
			out = append(out, line[:cut])
			line = strings.TrimLeft(line[cut:], " ")
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func startsRune(b byte) bool { return b&0xC0 != 0x80 }
