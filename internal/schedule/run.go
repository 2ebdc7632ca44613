// Package schedule holds the run data model, the schedule page parser, the
// time and text queries over a parsed schedule, and the snapshot store.
package schedule

import "time"

const (
	// listLayout renders "Saturday, 03:30:00 PM EDT".
	listLayout = "Monday, 03:04:05 PM MST"
	// clockLayout renders "03:30:00 PM EDT (Saturday)".
	clockLayout = "03:04:05 PM MST (Monday)"
)

// Run is one scheduled event. Start carries the schedule's fixed zone, so
// formatting prints that zone's label.
type Run struct {
	Start        time.Time
	Game         string
	Runner       string
	Estimate     string
	Comments     string
	Commentators string
	Prize        string
}

// TimeString renders the start as "03:30:00 PM EDT (Saturday)".
func (r Run) TimeString() string { return r.Start.Format(clockLayout) }

// String renders "Saturday, 03:30:00 PM EDT: Game by Runner".
func (r Run) String() string {
	return r.Start.Format(listLayout) + ": " + r.Game + " by " + r.Runner
}

// Schedule is an immutable, source-ordered list of runs.
type Schedule struct {
	runs []Run
}

// New copies runs into a Schedule. Order is kept as given.
func New(runs []Run) *Schedule {
	return &Schedule{runs: append([]Run(nil), runs...)}
}

func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.runs)
}

// At returns a copy of the i-th run.
func (s *Schedule) At(i int) Run { return s.runs[i] }

// Runs returns a copy of all runs.
func (s *Schedule) Runs() []Run {
	if s == nil {
		return nil
	}
	return append([]Run(nil), s.runs...)
}
