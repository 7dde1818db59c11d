package moodle

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"fic-gradebot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// OverviewCourse is one row of the grade overview page.
type OverviewCourse struct {
	CourseID int64
	Name     string
	// URL is the href of the course's grade report as it appears on the
	// page, it may be relative.
	URL   string
	Grade string
	// Archived is what the page itself says, see archive.Classify for the
	// flag stored on snapshots.
	Archived   bool
	TermLabel  string
	CourseCode string
}

var (
	ficTitleRegex    = regexp.MustCompile(`^(FIC)\s+(\d{6})\s+([^\s]+)`)
	fallbackCodeRe   = regexp.MustCompile(`\b([A-Z]{2,6}\d{2,4})\b`)
	nonAlnumRegex    = regexp.MustCompile(`[^A-Z0-9]`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
	dashPlaceholders = map[string]struct{}{"-": {}, "–": {}, "—": {}}
)

// FallbackTermLabel is the term label of courses whose title does not follow
// the "FIC YYYYTT CODE_SECTION" format.
const FallbackTermLabel = "Moodle"

// SplitCourseLabel splits a course title like
// "FIC 202503 MACM101_CHAB Discrete Mathematics I" into its term label
// ("FIC 202503") and course code ("MACM101"). Titles in another format get
// the fallback term label and whatever looks like a course code.
func SplitCourseLabel(title string) (termLabel string, courseCode string) {
	s := whitespaceRegex.ReplaceAllString(htmlutil.Clean(title), " ")
	if s == "" {
		return FallbackTermLabel, ""
	}
	up := strings.ToUpper(s)

	m := ficTitleRegex.FindStringSubmatch(up)
	if m != nil {
		code, _, _ := strings.Cut(m[3], "_")
		return m[1] + " " + m[2], nonAlnumRegex.ReplaceAllString(code, "")
	}

	m = fallbackCodeRe.FindStringSubmatch(up)
	if m != nil {
		return FallbackTermLabel, m[1]
	}
	return FallbackTermLabel, ""
}

// NotEnrolled reports whether the page shows the "not enrolled" notice,
// which Moodle sometimes serves on the first visit after signing in.
func NotEnrolled(html string) bool {
	hl := strings.Join(strings.Fields(strings.ToLower(html)), " ")
	if strings.Contains(hl, "not enrolled") && strings.Contains(hl, "courses") {
		return true
	}
	return strings.Contains(hl, "you are not enrolled in, nor teaching any courses on this site")
}

func isDash(s string) bool {
	_, ok := dashPlaceholders[s]
	return ok
}

func courseIdFromHref(href string) int64 {
	parsed, err := url.Parse(href)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(parsed.Query().Get("id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ParseOverview reads the course table of the grade overview page. Rows
// without a course report link, or repeating a course id, are skipped.
func ParseOverview(html string, emptyGrade string) []OverviewCourse {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []OverviewCourse
	seen := map[int64]struct{}{}

	doc.Find("table#overview-grade").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		c0 := tr.Find("th.c0, td.c0").First()
		c1 := tr.Find("td.c1").First()
		if c0.Length() == 0 || c1.Length() == 0 {
			return
		}

		switch strings.ToLower(htmlutil.Text(c0)) {
		case "course name", "course name grade":
			return
		}

		a := c0.Find("a").First()
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || href == "#" || href == "/" {
			return
		}
		if !strings.Contains(href, "course/user.php") {
			return
		}

		name := htmlutil.Text(a)
		if name == "" {
			return
		}

		id := courseIdFromHref(href)
		if id <= 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		grade := htmlutil.Text(c1)
		if isDash(grade) {
			grade = emptyGrade
		}
		// broken exports sometimes put course titles in the grade cell
		if strings.Contains(grade, "FIC") && !strings.Contains(grade, "course/user.php") {
			grade = emptyGrade
		}

		term, code := SplitCourseLabel(name)
		out = append(out, OverviewCourse{
			CourseID:   id,
			Name:       name,
			URL:        href,
			Grade:      grade,
			Archived:   strings.Contains(strings.ToLower(name), "(archived)") || code == "",
			TermLabel:  term,
			CourseCode: code,
		})
	})

	return out
}
