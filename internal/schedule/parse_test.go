package schedule

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseFixturePage(t *testing.T) {
	t.Parallel()

	b, err := os.ReadFile("testdata/schedule.html")
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewParser(testZone).ParseBytes(b)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (day-split rows skipped)", s.Len())
	}

	mario := s.At(1)
	want := Run{
		Game:         "Super Mario 64",
		Runner:       "Mario64Speedster",
		Estimate:     "1:45:00",
		Comments:     "120 Star",
		Commentators: "Siglemic",
		Prize:        "Signed controller",
	}
	mario.Start = want.Start
	if mario != want {
		t.Fatalf("At(1) = %+v, want %+v", mario, want)
	}

	if got := s.At(2).Comments; got != "Any%  " {
		t.Fatalf("Comments = %q, want raw text with trailing spaces", got)
	}
	if got := s.At(2).TimeString(); got != "01:15:00 AM EDT (Monday)" {
		t.Fatalf("TimeString() = %q", got)
	}
	if got := s.At(0).String(); got != "Sunday, 12:00:00 PM EDT: Pre-Show by SpikeVegeta" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseKeepsSourceOrder(t *testing.T) {
	t.Parallel()

	// Out of order on purpose: the parser must not sort.
	s, err := NewParser(testZone).Parse(strings.NewReader(page(
		row("7/5/2014 11:00:00", "Late", "A"),
		row("7/5/2014 09:00:00", "Early", "B"),
	)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.At(0).Game != "Late" || s.At(1).Game != "Early" {
		t.Fatalf("order = %q, %q, want Late, Early", s.At(0).Game, s.At(1).Game)
	}
}

func TestParseStartTimeRendering(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"7/5/2014 15:30:00", "03:30:00 PM EDT (Saturday)"},
		{"7/6/2014 0:05:09", "12:05:09 AM EDT (Sunday)"},
		{"12/31/2014 23:59:59", "11:59:59 PM EDT (Wednesday)"},
		{" 7/5/2014 09:00:00 ", "09:00:00 AM EDT (Saturday)"},
	}
	p := NewParser(testZone)
	for _, tc := range cases {
		s, err := p.Parse(strings.NewReader(page(row(tc.in, "G", "R"))))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.in, err)
		}
		r := s.At(0)
		if got := r.TimeString(); got != tc.want {
			t.Fatalf("Parse(%q).TimeString() = %q, want %q", tc.in, got, tc.want)
		}
		if _, off := r.Start.Zone(); off != -6*60*60 {
			t.Fatalf("offset = %d, want -21600", off)
		}
	}
}

func TestParseFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		want error
		row  int
	}{
		{"empty page", page(), ErrEmpty, -1},
		{"only dividers", page(`<tr class="day-split"><td>Monday</td></tr>`), ErrEmpty, -1},
		{"bad timestamp", page(row("7/5/2014 09:00:00", "A", "B"), row("soon", "C", "D")), ErrTimestamp, 1},
		{"short row", page(row("7/5/2014 09:00:00", "A", "B"), "<tr><td>7/5/2014 10:00:00</td><td>x</td></tr>"), ErrRowShape, 1},
		{"cells without whitespace", page("<tr><td>7/5/2014 10:00:00</td><td>a</td><td>b</td><td>c</td><td>d</td><td>e</td><td>f</td><td>g</td></tr>"), ErrRowShape, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewParser(testZone).Parse(strings.NewReader(tc.html))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Parse() error = %v, want %v", err, tc.want)
			}
			if s != nil {
				t.Fatalf("Parse() returned a partial schedule")
			}
			var pe *ParseError
			if tc.row >= 0 && (!errors.As(err, &pe) || pe.Row != tc.row) {
				t.Fatalf("Parse() error = %v, want ParseError at row %d", err, tc.row)
			}
		})
	}
}

func TestParserLocation(t *testing.T) {
	t.Parallel()

	if got := NewParser(testZone).Location(); got != testZone {
		t.Fatalf("Location() = %v, want %v", got, testZone)
	}
	if got := NewParser(nil).Location(); got != time.UTC {
		t.Fatalf("Location() = %v, want UTC", got)
	}
}
