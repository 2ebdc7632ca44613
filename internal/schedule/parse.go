package schedule

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// TimestampLayout is the page's start-time format, read in the schedule zone.
const TimestampLayout = "1/2/2006 15:04:05"

// rowSelector skips the day-divider rows.
const rowSelector = "tr:not(.day-split)"

// Child node offsets inside a row. Whitespace text nodes between cells
// count, which is why the cells sit on even offsets.
const (
	colStart        = 0
	colGame         = 2
	colRunner       = 4
	colEstimate     = 6
	colComments     = 10
	colCommentators = 12
	colPrize        = 14
)

var (
	ErrRowShape  = errors.New("schedule: unexpected row shape")
	ErrTimestamp = errors.New("schedule: unparseable start time")
	ErrEmpty     = errors.New("schedule: no runs found in page")
)

// ParseError reports the first row that failed. Row is the zero-based
// index among non-divider rows.
type ParseError struct {
	Row int
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Parser turns a schedule page into a Schedule.
type Parser struct {
	loc *time.Location
}

// NewParser reads timestamps in loc, normally a fixed zone such as
// time.FixedZone("EDT", -6*3600).
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// Location is the zone start times are read in.
func (p *Parser) Location() *time.Location { return p.loc }

// ParseBytes is Parse over an in-memory page.
func (p *Parser) ParseBytes(b []byte) (*Schedule, error) {
	return p.Parse(bytes.NewReader(b))
}

// Parse reads every non-divider table row. Any bad row fails the whole
// parse; a page with no rows fails with ErrEmpty.
func (p *Parser) Parse(r io.Reader) (*Schedule, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("schedule: read html: %w", err)
	}

	rows := doc.Find(rowSelector)
	runs := make([]Run, 0, rows.Length())
	var rowErr error
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		run, err := p.parseRow(row.Contents())
		if err != nil {
			rowErr = &ParseError{Row: i, Err: err}
			return false
		}
		runs = append(runs, run)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	if len(runs) == 0 {
		return nil, ErrEmpty
	}
	return New(runs), nil
}

func (p *Parser) parseRow(cells *goquery.Selection) (Run, error) {
	if n := cells.Length(); n <= colPrize {
		return Run{}, fmt.Errorf("%w: %d child nodes", ErrRowShape, n)
	}
	text := func(i int) string { return cells.Eq(i).Text() }

	raw := strings.TrimSpace(text(colStart))
	start, err := time.ParseInLocation(TimestampLayout, raw, p.loc)
	if err != nil {
		return Run{}, fmt.Errorf("%w: %q", ErrTimestamp, raw)
	}
	return Run{
		Start:        start,
		Game:         text(colGame),
		Runner:       text(colRunner),
		Estimate:     text(colEstimate),
		Comments:     text(colComments),
		Commentators: text(colCommentators),
		Prize:        text(colPrize),
	}, nil
}
