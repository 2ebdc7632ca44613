// Package transport is the contract between chat networks and the router.
package transport

import (
	"context"
	"time"
)

// ChatTarget addresses a reply. For IRC, ID is a channel or a nick. For
// Telegram, ID is the decimal chat id and ThreadID the forum topic.
type ChatTarget struct {
	ID       string
	ThreadID int
}

// Message is one inbound chat line.
type Message struct {
	Transport string
	// Target is where a reply to this message goes.
	Target   ChatTarget
	From     string
	Text     string
	Received time.Time
}

// Adapter connects to one chat network. Start must not block; inbound
// messages are offered to out without blocking and dropped when it is full.
type Adapter interface {
	Name() string
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string) error
}

// BotCommand is one entry of a platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters whose platform shows a
// command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
