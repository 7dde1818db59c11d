// Package archive decides which Moodle courses count as archived. The
// decision is a pure function of the course and the current date, it keeps
// no memory of earlier decisions.
package archive

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fic-gradebot/internal/components/chrono"
)

// TermCode is a college term as YYYYTT, TT being 1 (Jan-Apr), 2 (May-Aug)
// or 3 (Sep-Dec). Codes compare chronologically as integers.
type TermCode int

var termLabelRegex = regexp.MustCompile(`^FIC (\d{4})(0[1-3])$`)

// ParseTermCode parses labels like "FIC 202503". ok is false for anything
// else, including Moodle's own fallback label.
func ParseTermCode(label string) (code TermCode, ok bool) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(label), " "))
	m := termLabelRegex.FindStringSubmatch(normalized)
	if m == nil {
		return 0, false
	}
	year, _ := strconv.Atoi(m[1])
	term, _ := strconv.Atoi(m[2])
	return NewTermCode(year, term), true
}

func NewTermCode(year, term int) TermCode {
	return TermCode(year*100 + term)
}

func (c TermCode) Year() int {
	return int(c) / 100
}

func (c TermCode) Term() int {
	return int(c) % 100
}

func (c TermCode) String() string {
	return fmt.Sprintf("FIC %04d%02d", c.Year(), c.Term())
}

// CurrentTerm returns the term t falls in, in Vancouver time.
func CurrentTerm(t time.Time) TermCode {
	local := t.In(chrono.Vancouver())
	term := 3
	switch {
	case local.Month() <= time.April:
		term = 1
	case local.Month() <= time.August:
		term = 2
	}
	return NewTermCode(local.Year(), term)
}

// Prev steps back the given number of terms, rolling over into the
// previous year after term 1. Negative steps are treated as 0.
func (c TermCode) Prev(steps int) TermCode {
	year, term := c.Year(), c.Term()
	for i := 0; i < steps; i++ {
		if term <= 1 {
			year--
			term = 3
			continue
		}
		term--
	}
	return NewTermCode(year, term)
}

const (
	MinWindow = 1
	MaxWindow = 6
)

// ClampWindow bounds the number of active terms to [MinWindow, MaxWindow].
func ClampWindow(window int) int {
	if window < MinWindow {
		return MinWindow
	}
	if window > MaxWindow {
		return MaxWindow
	}
	return window
}

// Classify reports whether a course is archived. In order: a course without
// a code is archived, a course Moodle marks archived is archived, a course
// outside the college's term labels is archived, and otherwise a course is
// archived when its term is older than the last window terms.
func Classify(rawArchived bool, termLabel, courseCode string, current TermCode, window int) bool {
	if strings.TrimSpace(courseCode) == "" {
		return true
	}
	if rawArchived {
		return true
	}
	term, ok := ParseTermCode(termLabel)
	if !ok {
		return true
	}
	oldestActive := current.Prev(ClampWindow(window) - 1)
	return term < oldestActive
}

// Policy classifies courses against the term its clock is in.
type Policy struct {
	Window int
	Clock  chrono.TimeAPI
}

func (p Policy) Archived(rawArchived bool, termLabel, courseCode string) bool {
	return Classify(rawArchived, termLabel, courseCode, CurrentTerm(p.Clock.Now()), p.Window)
}
