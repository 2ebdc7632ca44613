package config

// Config is the whole on-disk configuration. Every section is optional;
// omitted fields take the values from Default.
type Config struct {
	Chat     ChatConfig     `json:"chat"`
	IRC      IRCConfig      `json:"irc"`
	Telegram TelegramConfig `json:"telegram"`
	Schedule ScheduleConfig `json:"schedule"`
	Feed     FeedConfig     `json:"feed"`
	Logging  LoggingConfig  `json:"logging"`
}

// ChatConfig selects the chat transport and tunes reply handling.
type ChatConfig struct {
	// Transport is "irc" or "telegram".
	Transport string `json:"transport"`
	// ReplyRatePerSec caps outbound replies across all targets.
	ReplyRatePerSec int `json:"reply_rate_per_sec"`
	Workers         int `json:"workers"`
}

type IRCConfig struct {
	// Server is host:port.
	Server   string   `json:"server"`
	Channels []string `json:"channels"`
	Nick     string   `json:"nick"`
	User     string   `json:"user,omitempty"`
	TLS      bool     `json:"tls,omitempty"`
	Password string   `json:"password,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// ScheduleConfig controls fetching and parsing the schedule page.
type ScheduleConfig struct {
	URL       string `json:"url"`
	UserAgent string `json:"user_agent"`
	// Interval is a Go duration ("60s"), an HH:MM duration ("00:01") or a cron
	// spec ("cron:*/2 * * * *", "@every 1m").
	Interval string `json:"interval"`
	// Timeout bounds one fetch. Go duration string.
	Timeout string `json:"timeout"`
	// UTCOffset is the fixed zone of the page's timestamps, e.g. "-06:00".
	UTCOffset string `json:"utc_offset"`
	// ZoneLabel is printed after formatted times.
	ZoneLabel string `json:"zone_label"`
}

// FeedConfig controls the read-only HTTP feed.
//
// Prefer a loopback address; the feed has no authentication.
type FeedConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
