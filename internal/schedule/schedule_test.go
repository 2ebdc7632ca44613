package schedule

import (
	"fmt"
	"strings"
	"time"
)

var testZone = time.FixedZone("EDT", -6*60*60)

// row renders one page row the way the source lays cells out: one cell per
// line, so whitespace text nodes sit between cells.
func row(start, game, runner string) string {
	cells := []string{start, game, runner, "0:30:00", "0:05:00", "comment", "commentator", "prize"}
	var b strings.Builder
	b.WriteString("<tr>")
	for i, c := range cells {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "<td>%s</td>", c)
	}
	b.WriteString("</tr>\n")
	return b.String()
}

func page(rows ...string) string {
	return "<html><body><table><tbody>\n" + strings.Join(rows, "") + "</tbody></table></body></html>"
}

func at(hhmm string) time.Time {
	t, err := time.ParseInLocation("1/2/2006 15:04", "7/5/2014 "+hhmm, testZone)
	if err != nil {
		panic(err)
	}
	return t
}

// threeRuns is GameA/R1 at 09:00, GameB/R2 at 10:00, GameC/R3 at 11:00.
func threeRuns() *Schedule {
	return New([]Run{
		{Start: at("09:00"), Game: "GameA", Runner: "R1"},
		{Start: at("10:00"), Game: "GameB", Runner: "R2"},
		{Start: at("11:00"), Game: "GameC", Runner: "R3"},
	})
}
