package config

import (
	"reflect"
	"sort"
	"strings"

	"sgdqbot/pkg/logx"
)

// Change describes what a reload touched.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	// Fields are safe to log; secrets are reported as set/unset only.
	Fields []logx.Field
	// RestartRequired is true when a change only takes effect after restart.
	RestartRequired bool
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if oldCfg.Chat != newCfg.Chat {
		ch.Sections = append(ch.Sections, "chat")
		ch.Fields = append(ch.Fields,
			logx.String("chat.transport", newCfg.Chat.Transport),
			logx.Int("chat.reply_rate_per_sec", newCfg.Chat.ReplyRatePerSec),
			logx.Int("chat.workers", newCfg.Chat.Workers),
		)
		if oldCfg.Chat.Transport != newCfg.Chat.Transport || oldCfg.Chat.Workers != newCfg.Chat.Workers {
			ch.RestartRequired = true
		}
	}

	if !reflect.DeepEqual(oldCfg.IRC, newCfg.IRC) {
		ch.Sections = append(ch.Sections, "irc")
		ch.Fields = append(ch.Fields,
			logx.String("irc.server", newCfg.IRC.Server),
			logx.Strings("irc.channels", newCfg.IRC.Channels),
			logx.String("irc.nick", newCfg.IRC.Nick),
			logx.Bool("irc.password_set", newCfg.IRC.Password != ""),
		)
		ch.RestartRequired = ch.RestartRequired || newCfg.Chat.Transport == TransportIRC
	}

	if oldCfg.Telegram != newCfg.Telegram {
		ch.Sections = append(ch.Sections, "telegram")
		ch.Fields = append(ch.Fields,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
		ch.RestartRequired = ch.RestartRequired || newCfg.Chat.Transport == TransportTelegram
	}

	if oldCfg.Schedule != newCfg.Schedule {
		ch.Sections = append(ch.Sections, "schedule")
		ch.Fields = append(ch.Fields,
			logx.String("schedule.url", newCfg.Schedule.URL),
			logx.String("schedule.interval", newCfg.Schedule.Interval),
			logx.String("schedule.timeout", newCfg.Schedule.Timeout),
		)
		// The parser's zone is fixed at startup.
		if oldCfg.Schedule.UTCOffset != newCfg.Schedule.UTCOffset || oldCfg.Schedule.ZoneLabel != newCfg.Schedule.ZoneLabel {
			ch.RestartRequired = true
		}
	}

	if oldCfg.Feed != newCfg.Feed {
		ch.Sections = append(ch.Sections, "feed")
		ch.Fields = append(ch.Fields,
			logx.Bool("feed.enabled", newCfg.Feed.Enabled),
			logx.String("feed.addr", newCfg.Feed.Addr),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	sort.Strings(ch.Sections)
	return ch
}
