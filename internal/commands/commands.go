// Package commands maps chat command tokens to schedule queries and
// formats the replies. Nothing here does I/O.
package commands

import (
	"strconv"
	"strings"
	"time"

	"sgdqbot/internal/schedule"
)

// Reply texts that are not built from runs.
const (
	MsgNoSchedule = "Error accessing SGDQ schedule."
	MsgNoRuns     = "No runs found."
	MsgTooMany    = "More than 5 results, please be more specific."
)

// MaxResults is the largest search result that is listed in full.
const MaxResults = 5

type Kind uint8

const (
	KindNone Kind = iota
	KindStatus
	KindWhenRunner
	KindWhenGame
)

type handler func(args string, s *schedule.Schedule, now time.Time) string

// Command is one member of the closed command set. None stands for any
// unrecognized token and never replies.
type Command struct {
	Kind   Kind
	Token  string
	Usage  string
	handle handler
}

var (
	None       = Command{Kind: KindNone}
	Status     = Command{Kind: KindStatus, Token: ".sgdq", Usage: ".sgdq", handle: status}
	WhenRunner = Command{Kind: KindWhenRunner, Token: ".whenrunner", Usage: ".whenrunner <runner>", handle: whenRunner}
	WhenGame   = Command{Kind: KindWhenGame, Token: ".whengame", Usage: ".whengame <game>", handle: whenGame}
)

// All returns the recognized commands.
func All() []Command { return []Command{Status, WhenRunner, WhenGame} }

// Lookup matches token literally. Unknown tokens yield None.
func Lookup(token string) Command {
	for _, c := range All() {
		if c.Token == token {
			return c
		}
	}
	return None
}

// Parse splits a chat line into its command and the remaining words
// joined by single spaces.
func Parse(text string) (Command, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return None, ""
	}
	return Lookup(fields[0]), strings.Join(fields[1:], " ")
}

// Run answers the command against s. ok is false only for None. A nil
// schedule means no refresh has succeeded yet.
func (c Command) Run(args string, s *schedule.Schedule, now time.Time) (reply string, ok bool) {
	if c.handle == nil {
		return "", false
	}
	if s == nil {
		return MsgNoSchedule, true
	}
	return c.handle(args, s, now), true
}

func status(_ string, s *schedule.Schedule, now time.Time) string {
	cur, next := schedule.CurrentAndNext(s, now)
	switch {
	case cur == nil && next == nil:
		return MsgNoRuns
	case cur == nil:
		return "Currently: nothing yet | Up Next: " + gameBy(next) + " at " + next.TimeString()
	case next == nil:
		return "Currently: " + gameBy(cur) + " | Up Next: nothing, the schedule is over"
	default:
		return "Currently: " + gameBy(cur) + " | Up Next: " + gameBy(next) + " at " + next.TimeString()
	}
}

func whenRunner(args string, s *schedule.Schedule, _ time.Time) string {
	return FormatResults(schedule.FilterByRunner(s, args))
}

func whenGame(args string, s *schedule.Schedule, _ time.Time) string {
	return FormatResults(schedule.FilterByGame(s, args))
}

// FormatResults applies the result-count policy: nothing found, too many,
// or a numbered list joined by " | ".
func FormatResults(runs []schedule.Run) string {
	switch {
	case len(runs) == 0:
		return MsgNoRuns
	case len(runs) > MaxResults:
		return MsgTooMany
	}
	var b strings.Builder
	for i, r := range runs {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r.String())
	}
	return b.String()
}

func gameBy(r *schedule.Run) string { return r.Game + " by " + r.Runner }
