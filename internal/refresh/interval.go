package refresh

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// Interval says when the next refresh is due. It is either a fixed
// duration measured from the end of the previous attempt, or a cron
// schedule.
//
// Accepted forms:
//   - Go duration: "60s", "2m30s"
//   - HH:MM duration: "00:01" (one minute), "01:30"
//   - cron: "*/2 * * * *", "@every 1m", "@hourly"
//
// "cron:" forces cron; "interval:" and "every:" force a duration.
type Interval struct {
	Every  time.Duration
	Cron   cron.Schedule
	Expr   string
	Source string // "duration" | "hhmm" | "cron"
}

// Every returns a fixed Interval of d.
func Every(d time.Duration) Interval {
	return Interval{Every: d, Expr: d.String(), Source: "duration"}
}

func ParseInterval(raw string) (Interval, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Interval{}, fmt.Errorf("refresh interval required")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseDuration(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseDuration(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return parseCron(s)
	default:
		return parseDuration(s)
	}
}

func parseCron(expr string) (Interval, error) {
	if expr == "" {
		return Interval{}, fmt.Errorf("cron expression required after 'cron:'")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	// cron reports a zero time when nothing matches within five years.
	if sched.Next(time.Now()).IsZero() {
		return Interval{}, fmt.Errorf("cron %q never fires", expr)
	}
	return Interval{Cron: sched, Expr: expr, Source: "cron"}, nil
}

func parseDuration(v string) (Interval, error) {
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Interval{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Interval{}, fmt.Errorf("interval must be > 0")
		}
		return Interval{Every: d, Expr: v, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval %q (use a cron spec like '*/2 * * * *', HH:MM like '00:01', or a duration like '60s')", v)
	}
	if d <= 0 {
		return Interval{}, fmt.Errorf("interval must be > 0")
	}
	return Interval{Every: d, Expr: v, Source: "duration"}, nil
}

// Next returns when the attempt after one finishing at from is due.
func (iv Interval) Next(from time.Time) time.Time {
	if iv.Cron != nil {
		return iv.Cron.Next(from)
	}
	return from.Add(iv.Every)
}

func (iv Interval) IsZero() bool { return iv.Cron == nil && iv.Every <= 0 }

func (iv Interval) String() string { return iv.Expr }
