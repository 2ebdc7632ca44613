package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sgdqbot/internal/config"
	"sgdqbot/internal/feed"
	"sgdqbot/internal/refresh"
	"sgdqbot/internal/router"
	"sgdqbot/internal/source"
	"sgdqbot/internal/transport"
	"sgdqbot/internal/transport/irc"
	"sgdqbot/internal/transport/telegram"
	logx "sgdqbot/pkg/logx"
)

// validate is the hot-reload gate: everything config.Validate checks plus
// the values only other packages can parse.
func validate(_ context.Context, cfg *config.Config) error {
	var errs []error
	if err := config.Validate(cfg); err != nil {
		errs = append(errs, err)
	}
	if cfg != nil {
		if _, err := refresh.ParseInterval(cfg.Schedule.Interval); err != nil {
			errs = append(errs, fmt.Errorf("schedule.interval: %w", err))
		}
	}
	return errors.Join(errs...)
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSource(cfg *config.Config) (source.Config, error) {
	timeout, err := config.ParseDurationOrDefault("schedule.timeout", cfg.Schedule.Timeout, config.DefaultTimeout)
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{
		URL:       cfg.Schedule.URL,
		UserAgent: cfg.Schedule.UserAgent,
		Timeout:   timeout,
	}, nil
}

func mapRouter(cfg *config.Config) router.Config {
	return router.Config{
		Workers:         cfg.Chat.Workers,
		ReplyRatePerSec: cfg.Chat.ReplyRatePerSec,
	}
}

func mapFeed(cfg *config.Config) feed.Config {
	return feed.Config{
		Enabled:      cfg.Feed.Enabled,
		Addr:         cfg.Feed.Addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// scheduleZone is the fixed zone the page's timestamps are written in.
// Its name is the label printed after formatted times.
func scheduleZone(cfg *config.Config) (*time.Location, error) {
	off, err := config.ParseUTCOffset(cfg.Schedule.UTCOffset)
	if err != nil {
		return nil, fmt.Errorf("schedule.utc_offset: %w", err)
	}
	label := strings.TrimSpace(cfg.Schedule.ZoneLabel)
	if label == "" {
		label = config.DefaultZoneLabel
	}
	return time.FixedZone(label, off), nil
}

func newAdapter(cfg *config.Config, log logx.Logger) (transport.Adapter, error) {
	switch cfg.Chat.Transport {
	case config.TransportTelegram:
		poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, log)
	case config.TransportIRC, "":
		return irc.New(irc.Config{
			Server:   cfg.IRC.Server,
			Channels: cfg.IRC.Channels,
			Nick:     cfg.IRC.Nick,
			User:     cfg.IRC.User,
			Password: cfg.IRC.Password,
			TLS:      cfg.IRC.TLS,
		}, log)
	default:
		return nil, fmt.Errorf("chat.transport: unknown transport %q", cfg.Chat.Transport)
	}
}
