// Package telegram is the Telegram chat adapter.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"sgdqbot/internal/runtime/supervisor"
	"sgdqbot/internal/transport"
	"sgdqbot/pkg/logx"
)

const (
	name      = "telegram"
	textLimit = 4000
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu sync.Mutex
	sup   *supervisor.Supervisor

	out     atomic.Pointer[chan<- transport.Message]
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		from := ""
		if m.Sender != nil {
			from = m.Sender.Username
		}
		a.offer(toMessage(m.Chat.ID, m.ThreadID, from, m.Text))
		return nil
	})
	return a, nil
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until bot.Stop; an early return is restarted.
	a.sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_messages", a.dropped.Load()))

	// A long poll may still be waiting on Telegram; do not hold shutdown for it.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		grace = min(grace, time.Until(dl))
	}
	wctx, cancel := context.WithTimeout(ctx, max(grace, 0))
	defer cancel()
	if err := sup.Stop(wctx); errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("telegram stop timed out", logx.Err(err))
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
		a.dropped.Add(1)
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	chatID, err := strconv.ParseInt(to.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", to.ID, err)
	}
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: to.ThreadID}
		if _, err := a.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMenuCommands publishes the command menu. Telegram commands are
// slash commands, which toMessage maps back to dot tokens.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	menu := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		menu = append(menu, tele.Command{Text: strings.TrimLeft(c.Command, "./"), Description: c.Description})
	}
	if err := a.bot.SetCommands(menu); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	a.log.Info("menu commands updated", logx.Int("count", len(menu)))
	return nil
}

// toMessage maps a Telegram text message. "/sgdq@SomeBot args" becomes
// ".sgdq args" so slash commands reach the same command table.
func toMessage(chatID int64, threadID int, from, text string) transport.Message {
	if strings.HasPrefix(text, "/") {
		cmd, rest, _ := strings.Cut(text[1:], " ")
		cmd, _, _ = strings.Cut(cmd, "@")
		text = "." + cmd
		if rest != "" {
			text += " " + rest
		}
	}
	return transport.Message{
		Transport: name,
		Target:    transport.ChatTarget{ID: strconv.FormatInt(chatID, 10), ThreadID: threadID},
		From:      from,
		Text:      text,
		Received:  time.Now(),
	}
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that keep chunks above a third of the limit.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i-start >= limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
