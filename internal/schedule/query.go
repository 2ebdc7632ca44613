package schedule

import (
	"strings"
	"time"
)

// CurrentAndNext finds the last run started at or before now and the first
// run after it, in one forward scan. Either may be nil.
func CurrentAndNext(s *Schedule, now time.Time) (current, next *Run) {
	n := s.Len()
	i := 0
	for i < n && !s.runs[i].Start.After(now) {
		i++
	}
	if i > 0 {
		r := s.runs[i-1]
		current = &r
	}
	if i < n {
		r := s.runs[i]
		next = &r
	}
	return current, next
}

// FilterByRunner returns runs whose runner contains text, ignoring case.
func FilterByRunner(s *Schedule, text string) []Run {
	return filter(s, text, func(r *Run) string { return r.Runner })
}

// FilterByGame returns runs whose game contains text, ignoring case.
func FilterByGame(s *Schedule, text string) []Run {
	return filter(s, text, func(r *Run) string { return r.Game })
}

func filter(s *Schedule, text string, field func(*Run) string) []Run {
	needle := strings.ToLower(text)
	var out []Run
	for i := 0; i < s.Len(); i++ {
		if strings.Contains(strings.ToLower(field(&s.runs[i])), needle) {
			out = append(out, s.runs[i])
		}
	}
	return out
}
