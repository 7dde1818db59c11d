package changes

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"fic-gradebot/internal/snapshot"
)

// NoValue is shown for items without a grade or percentage.
const NoValue = "—"

// SnippetLength is the number of characters of feedback quoted in
// notifications.
const SnippetLength = 120

var (
	spacesRegex      = regexp.MustCompile(`\s+`)
	percentRegex     = regexp.MustCompile(`(-?\d+(?:\.\d+)?)%`)
	wrappedRegex     = regexp.MustCompile(`^\(([^)]+)\)$`)
	letterRegex      = regexp.MustCompile(`\(([A-Z][A-Z+\-]*)\)`)
	numberRegex      = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	rangeRegex       = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*[-–−]\s*(-?\d+(?:\.\d+)?)`)
	activityRegex    = regexp.MustCompile(`(?i)^Link to\s+.*?\s+activity\s+`)
	courseTokenRegex = regexp.MustCompile(`(?i)^FIC\s+\d{6}\s+[^\s]+\s*`)
	archivedRegex    = regexp.MustCompile(`(?i)\(archived\)`)
)

func collapse(s string) string {
	return strings.TrimSpace(spacesRegex.ReplaceAllString(s, " "))
}

func formatNumber(x float64) string {
	s := strconv.FormatFloat(x, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// CompactPercent shortens "100.00 %" to "100%" and "87.50 %" to "87.5%".
func CompactPercent(s string) string {
	t := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if t == "" {
		return ""
	}
	m := percentRegex.FindStringSubmatch(t)
	if m == nil {
		return t
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return t
	}
	if math.Abs(num-math.Round(num)) < 1e-9 {
		return strconv.Itoa(int(math.Round(num))) + "%"
	}
	one := strconv.FormatFloat(num, 'f', 1, 64)
	one = strings.TrimSuffix(strings.TrimRight(one, "0"), ".")
	return one + "%"
}

// CompactGrade shortens grade cells: "(A+)" becomes "A+" and
// "100.00 % (A+)" becomes "100% (A+)".
func CompactGrade(raw string) string {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "−", "-")
	if s == "" {
		return ""
	}
	if m := wrappedRegex.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if !strings.Contains(s, "%") {
		return s
	}
	pct := CompactPercent(s)
	if m := letterRegex.FindStringSubmatch(strings.ToUpper(s)); m != nil {
		return pct + " (" + m[1] + ")"
	}
	return pct
}

// ParseRange reads ranges like "0.00–10.00" or "0-100".
func ParseRange(rng string) (lo float64, hi float64, ok bool) {
	m := rangeRegex.FindStringSubmatch(rng)
	if m == nil {
		return 0, 0, false
	}
	lo, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// DisplayValue renders an item's grade compactly: points against the range
// maximum as "9/10 (90%)", otherwise the grade and percentage, otherwise
// NoValue.
func DisplayValue(it snapshot.GradeItem) string {
	grade := CompactGrade(it.Grade)
	pct := CompactPercent(it.Percentage)

	if strings.Contains(grade, "%") {
		return grade
	}

	if grade != "" {
		_, hi, ok := ParseRange(it.Range)
		if ok && hi > 0 {
			if num := numberRegex.FindString(grade); num != "" {
				g, err := strconv.ParseFloat(num, 64)
				if err == nil {
					pts := formatNumber(g) + "/" + formatNumber(hi)
					if pct != "" {
						return pts + " (" + pct + ")"
					}
					return pts
				}
			}
		}
		if pct != "" && !strings.Contains(grade, pct) {
			return grade + " (" + pct + ")"
		}
		return grade
	}
	if pct != "" {
		return pct
	}
	return NoValue
}

// CleanItemName drops Moodle's "Link to Quiz activity" style prefix.
func CleanItemName(name string) string {
	s := collapse(name)
	s = strings.TrimSpace(activityRegex.ReplaceAllString(s, ""))
	if s == "" {
		return strings.TrimSpace(name)
	}
	return s
}

// CourseShortName drops the "FIC 202503 CMPT135_YEJI" prefix and archived
// markers of a course title.
func CourseShortName(full string) string {
	s := collapse(full)
	s = courseTokenRegex.ReplaceAllString(s, "")
	s = collapse(archivedRegex.ReplaceAllString(s, ""))
	if s == "" {
		return strings.TrimSpace(full)
	}
	return s
}

// CourseLabel is the course code, or the short name for courses without
// one.
func CourseLabel(c CourseRef) string {
	if code := strings.TrimSpace(c.CourseCode); code != "" {
		return code
	}
	return CourseShortName(c.Name)
}

// Snippet truncates feedback to SnippetLength characters.
func Snippet(feedback string) string {
	s := strings.TrimSpace(feedback)
	if utf8.RuneCountInString(s) <= SnippetLength {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:SnippetLength]), " \t\n") + "…"
}
