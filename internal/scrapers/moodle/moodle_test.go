package moodle

import (
	_ "embed"
	"testing"

	"fic-gradebot/internal/snapshot"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/overview.html
var overviewHtml string

//go:embed testdata/report.html
var reportHtml string

//go:embed testdata/report_no_grade.html
var reportNoGradeHtml string

//go:embed testdata/not_enrolled.html
var notEnrolledHtml string

func TestParseOverview(t *testing.T) {
	got := ParseOverview(overviewHtml, "")
	expected := []OverviewCourse{
		{
			CourseID:   4401,
			Name:       "FIC 202503 MACM101_CHAB Discrete Mathematics I",
			URL:        "https://moodle.fraseric.ca/course/user.php?mode=grade&id=4401&user=77",
			Grade:      "87.50 %",
			TermLabel:  "FIC 202503",
			CourseCode: "MACM101",
		},
		{
			CourseID:   4402,
			Name:       "FIC 202503 CMPT135_YEJI Programming II",
			URL:        "/course/user.php?mode=grade&id=4402&user=77",
			Grade:      "",
			TermLabel:  "FIC 202503",
			CourseCode: "CMPT135",
		},
		{
			CourseID:   3900,
			Name:       "FIC 202403 CNQS101_ABCD (archived) Canadian Studies (archived)",
			URL:        "https://moodle.fraseric.ca/course/user.php?mode=grade&id=3900&user=77",
			Grade:      "A (91.00 %)",
			Archived:   true,
			TermLabel:  "FIC 202403",
			CourseCode: "CNQS101",
		},
		{
			CourseID:  3100,
			Name:      "Student Success Orientation",
			URL:       "https://moodle.fraseric.ca/course/user.php?mode=grade&id=3100&user=77",
			Archived:  true,
			TermLabel: FallbackTermLabel,
		},
		{
			CourseID:   3200,
			Name:       "Math Lab ECON1034 drop-in",
			URL:        "https://moodle.fraseric.ca/course/user.php?mode=grade&id=3200&user=77",
			TermLabel:  FallbackTermLabel,
			CourseCode: "ECON1034",
		},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatal(diff)
	}

	require.Equal(t, "n/a", ParseOverview(overviewHtml, "n/a")[1].Grade)
	require.Empty(t, ParseOverview("<html></html>", ""))
	require.Empty(t, ParseOverview(notEnrolledHtml, ""))
}

func TestSplitCourseLabel(t *testing.T) {
	testCases := []struct {
		title string
		term  string
		code  string
	}{
		{title: "FIC 202503 MACM101_CHAB (archived) Discrete Mathematics I (archived)", term: "FIC 202503", code: "MACM101"},
		{title: "FIC 202503 MACMT_YWELDESEL Discrete Mathematics Tutorial", term: "FIC 202503", code: "MACMT"},
		{title: "fic  202601   cmpt-130_abc Intro", term: "FIC 202601", code: "CMPT130"},
		{title: "Economics ECON1034", term: FallbackTermLabel, code: "ECON1034"},
		{title: "Orientation", term: FallbackTermLabel, code: ""},
		{title: "   ", term: FallbackTermLabel, code: ""},
	}

	for _, test := range testCases {
		term, code := SplitCourseLabel(test.title)
		require.Equal(t, test.term, term, test.title)
		require.Equal(t, test.code, code, test.title)
	}
}

func TestNotEnrolled(t *testing.T) {
	require.True(t, NotEnrolled(notEnrolledHtml))
	require.True(t, NotEnrolled("<p>You are NOT ENROLLED in any courses</p>"))
	require.False(t, NotEnrolled(overviewHtml))
	require.False(t, NotEnrolled(""))
}

func TestParseReport(t *testing.T) {
	items := ParseReport(reportHtml)
	require.Len(t, items, 6)

	const root = "MACM101 Discrete Mathematics"
	const assignments = root + snapshot.CategorySeparator + "Assignments"

	expected := []snapshot.GradeItem{
		{
			ItemID:       "row_90001",
			Name:         "Link to Assignment activity Assignment 1",
			Grade:        "9.00",
			Range:        "0.00–10.00",
			Percentage:   "90.00 %",
			Feedback:     "Nice work on question 2.",
			Link:         "https://moodle.fraseric.ca/mod/assign/view.php?id=555",
			Level:        3,
			CategoryPath: assignments,
		},
		{
			ItemID:       "row_90002",
			Name:         "Assignment 2",
			Range:        "0.00–10.00",
			Level:        3,
			CategoryPath: assignments,
		},
		{
			ItemID:       "row_90001",
			Name:         "Assignment 1 again",
			Grade:        "1.00",
			Range:        "0.00–10.00",
			Percentage:   "10.00 %",
			Level:        3,
			CategoryPath: assignments,
		},
		{
			Name:         "Assignments total",
			Grade:        "9.00",
			Range:        "0.00–10.00",
			Percentage:   "90.00 %",
			Level:        3,
			CategoryPath: assignments,
		},
		{
			ItemID:       "row_90100",
			Name:         "Midterm",
			Range:        "0–100",
			Level:        2,
			CategoryPath: root,
		},
		{
			Name:         "Course total",
			Grade:        "B+ (87.50 %)",
			Range:        "0.00–100.00",
			Percentage:   "87.50 %",
			Level:        2,
			CategoryPath: root,
		},
	}

	ignoreHashedIds := cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".ItemID"
	}, cmp.Comparer(func(a, b string) bool {
		return a == "" || b == "" || a == b
	}))
	if diff := cmp.Diff(expected, items, ignoreHashedIds); diff != "" {
		t.Fatal(diff)
	}

	// rows without a stable id get a deterministic hashed one
	require.Regexp(t, `^row_[0-9a-f]{10}$`, items[3].ItemID)
	require.Regexp(t, `^row_[0-9a-f]{10}$`, items[5].ItemID)
	require.NotEqual(t, items[3].ItemID, items[5].ItemID)
	require.Equal(t, items[5].ItemID, ParseReport(reportHtml)[5].ItemID)

	course, err := snapshot.NewCourse(snapshot.Course{
		CourseID: 4401,
		Name:     "MACM101",
		URL:      "https://moodle.fraseric.ca/course/user.php?id=4401",
		Items:    items,
	})
	require.NoError(t, err)
	require.Len(t, course.Items, 5)
	require.Equal(t, "Link to Assignment activity Assignment 1", course.Items[0].Name)
}

func TestParseReportWithoutGradeColumn(t *testing.T) {
	items := ParseReport(reportNoGradeHtml)
	expected := []snapshot.GradeItem{{
		ItemID:       "row_7",
		Name:         "Quiz 1",
		Range:        "0–5",
		Percentage:   "80.00 %",
		Feedback:     "Good",
		Level:        3,
		CategoryPath: "Course Root" + snapshot.CategorySeparator + "Quizzes",
	}}
	if diff := cmp.Diff(expected, items); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseReportMalformed(t *testing.T) {
	for _, html := range []string{"", "<p>hi</p>", `<table class="user-grade"></table>`} {
		items := ParseReport(html)
		if diff := cmp.Diff([]snapshot.GradeItem{}, items, cmpopts.EquateEmpty()); diff != "" {
			t.Fatal(diff)
		}
	}
}
