package commands

import (
	"time"

	"sgdqbot/internal/schedule"
)

// Source yields the current schedule snapshot.
type Source interface {
	Current() (*schedule.Schedule, bool)
}

type Dispatcher struct {
	src Source
	now func() time.Time
}

type Option func(*Dispatcher)

// WithClock overrides time.Now for the status command.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(src Source, opts ...Option) *Dispatcher {
	d := &Dispatcher{src: src, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch answers one chat line. ok is false when the line is not a command.
func (d *Dispatcher) Dispatch(text string) (reply string, ok bool) {
	cmd, args := Parse(text)
	if cmd.Kind == KindNone {
		return "", false
	}
	s, _ := d.src.Current()
	return cmd.Run(args, s, d.now())
}
