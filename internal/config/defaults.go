package config

import (
	"strings"
	"time"
)

const (
	TransportIRC      = "irc"
	TransportTelegram = "telegram"
)

const (
	DefaultIRCServer = "irc.speedrunslive.com:6667"
	DefaultChannel   = "#502"
	DefaultNick      = "BreetBot"

	DefaultScheduleURL = "http://gamesdonequick.com/schedule"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 6.1; rv:28.0) Gecko/20100101 Firefox/28.0"
	DefaultInterval    = "60s"
	DefaultTimeout     = 20 * time.Second
	DefaultUTCOffset   = "-06:00"
	DefaultZoneLabel   = "EDT"

	DefaultFeedAddr = "127.0.0.1:8089"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Chat: ChatConfig{
			Transport:       TransportIRC,
			ReplyRatePerSec: 2,
			Workers:         4,
		},
		IRC: IRCConfig{
			Server:   DefaultIRCServer,
			Channels: []string{DefaultChannel},
			Nick:     DefaultNick,
		},
		Schedule: ScheduleConfig{
			URL:       DefaultScheduleURL,
			UserAgent: DefaultUserAgent,
			Interval:  DefaultInterval,
			Timeout:   DefaultTimeout.String(),
			UTCOffset: DefaultUTCOffset,
			ZoneLabel: DefaultZoneLabel,
		},
		Feed:    FeedConfig{Addr: DefaultFeedAddr},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// fillDefaults restores defaults for fields a file set to empty values.
func fillDefaults(c *Config) {
	d := Default()
	setStr := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	setStr(&c.Chat.Transport, d.Chat.Transport)
	c.Chat.Transport = strings.ToLower(strings.TrimSpace(c.Chat.Transport))
	if c.Chat.ReplyRatePerSec <= 0 {
		c.Chat.ReplyRatePerSec = d.Chat.ReplyRatePerSec
	}
	if c.Chat.Workers <= 0 {
		c.Chat.Workers = d.Chat.Workers
	}

	setStr(&c.IRC.Server, d.IRC.Server)
	setStr(&c.IRC.Nick, d.IRC.Nick)
	if len(c.IRC.Channels) == 0 {
		c.IRC.Channels = d.IRC.Channels
	}

	setStr(&c.Schedule.URL, d.Schedule.URL)
	setStr(&c.Schedule.UserAgent, d.Schedule.UserAgent)
	setStr(&c.Schedule.Interval, d.Schedule.Interval)
	setStr(&c.Schedule.Timeout, d.Schedule.Timeout)
	setStr(&c.Schedule.UTCOffset, d.Schedule.UTCOffset)
	setStr(&c.Schedule.ZoneLabel, d.Schedule.ZoneLabel)

	setStr(&c.Feed.Addr, d.Feed.Addr)
	setStr(&c.Logging.Level, d.Logging.Level)
}

// ApplyArgs applies the positional "server channel nick" override. Any
// argument count other than three leaves cfg untouched and reports false.
func ApplyArgs(cfg *Config, args []string) bool {
	if cfg == nil || len(args) != 3 {
		return false
	}
	cfg.IRC.Server = withDefaultPort(args[0])
	cfg.IRC.Channels = []string{args[1]}
	cfg.IRC.Nick = args[2]
	return true
}

func withDefaultPort(server string) string {
	server = strings.TrimSpace(server)
	if server == "" || strings.Contains(server, ":") {
		return server
	}
	return server + ":6667"
}
