package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sgdqbot/pkg/logx"
)

// Validate checks the fields that can be checked without other packages.
// All problems are reported together.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Chat.Transport {
	case TransportIRC:
		if strings.TrimSpace(c.IRC.Server) == "" {
			add("irc.server: required")
		}
		if strings.TrimSpace(c.IRC.Nick) == "" || strings.ContainsAny(c.IRC.Nick, " \t") {
			add("irc.nick: invalid %q", c.IRC.Nick)
		}
		for _, ch := range c.IRC.Channels {
			if !strings.HasPrefix(ch, "#") && !strings.HasPrefix(ch, "&") {
				add("irc.channels: %q is not a channel name", ch)
			}
		}
	case TransportTelegram:
		if strings.TrimSpace(c.Telegram.Token) == "" {
			add("telegram.token: required when chat.transport is telegram")
		}
		if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
			errs = append(errs, err)
		}
	default:
		add("chat.transport: unknown transport %q", c.Chat.Transport)
	}

	if u, err := url.Parse(c.Schedule.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("schedule.url: must be an absolute http(s) URL, got %q", c.Schedule.URL)
	}
	if _, err := ParseDurationField("schedule.timeout", c.Schedule.Timeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseUTCOffset(c.Schedule.UTCOffset); err != nil {
		errs = append(errs, fmt.Errorf("schedule.utc_offset: %w", err))
	}
	if !logx.ValidLevel(c.Logging.Level) {
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	return errors.Join(errs...)
}

// ParseUTCOffset parses "+HH:MM" / "-HH:MM" into seconds east of UTC.
func ParseUTCOffset(s string) (int, error) {
	t, err := time.Parse("-07:00", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	_, off := t.Zone()
	return off, nil
}
