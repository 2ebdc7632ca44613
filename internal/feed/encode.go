package feed

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	jsoniter "github.com/json-iterator/go"

	"sgdqbot/internal/schedule"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type runJSON struct {
	Start        time.Time `json:"start"`
	When         string    `json:"when"`
	Game         string    `json:"game"`
	Runner       string    `json:"runner"`
	Estimate     string    `json:"estimate"`
	Comments     string    `json:"comments"`
	Commentators string    `json:"commentators"`
	Prize        string    `json:"prize"`
}

type scheduleJSON struct {
	Updated time.Time `json:"updated"`
	Version uint64    `json:"version"`
	Runs    []runJSON `json:"runs"`
}

type nowJSON struct {
	Current *runJSON `json:"current"`
	Next    *runJSON `json:"next"`
}

func toRunJSON(r *schedule.Run) *runJSON {
	if r == nil {
		return nil
	}
	return &runJSON{
		Start:        r.Start,
		When:         r.TimeString(),
		Game:         r.Game,
		Runner:       r.Runner,
		Estimate:     r.Estimate,
		Comments:     r.Comments,
		Commentators: r.Commentators,
		Prize:        r.Prize,
	}
}

func snapshotJSON(snap schedule.Snapshot) scheduleJSON {
	runs := snap.Schedule.Runs()
	out := scheduleJSON{
		Updated: snap.Updated,
		Version: snap.Version,
		Runs:    make([]runJSON, 0, len(runs)),
	}
	for i := range runs {
		out.Runs = append(out.Runs, *toRunJSON(&runs[i]))
	}
	return out
}

func currentJSON(s *schedule.Schedule, now time.Time) nowJSON {
	cur, next := schedule.CurrentAndNext(s, now)
	return nowJSON{Current: toRunJSON(cur), Next: toRunJSON(next)}
}

// writeICS renders one VEVENT per run. Runs with a parseable estimate get
// a DTEND.
func writeICS(w io.Writer, snap schedule.Snapshot) error {
	cal := ics.NewCalendarFor("sgdqbot")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName("Summer Games Done Quick")

	for i, r := range snap.Schedule.Runs() {
		ev := cal.AddEvent(fmt.Sprintf("%d-%d@sgdqbot", r.Start.Unix(), i))
		ev.SetDtStampTime(snap.Updated)
		ev.SetStartAt(r.Start)
		if d, ok := parseEstimate(r.Estimate); ok {
			ev.SetEndAt(r.Start.Add(d))
		}
		ev.SetSummary(r.Game + " by " + r.Runner)
		ev.SetDescription(describe(r))
	}
	return cal.SerializeTo(w)
}

func describe(r schedule.Run) string {
	var parts []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("Estimate", r.Estimate)
	add("Commentators", r.Commentators)
	add("Prize", r.Prize)
	add("Comments", r.Comments)
	return strings.Join(parts, "\n")
}

// parseEstimate reads "H:MM:SS" or "MM:SS".
func parseEstimate(s string) (time.Duration, bool) {
	f := strings.Split(strings.TrimSpace(s), ":")
	if len(f) < 2 || len(f) > 3 {
		return 0, false
	}
	var d time.Duration
	for _, p := range f {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		d = d*60 + time.Duration(n)
	}
	return d * time.Second, d > 0
}
