package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"fic-gradebot/internal/archive"
	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/snapshot"

	"github.com/stretchr/testify/require"
)

const overviewUrl = "https://moodle.fraseric.ca/grade/report/overview/"

type fakeFetcher struct {
	mu          sync.Mutex
	pages       map[string]string
	errs        map[string]error
	notEnrolled int
	calls       map[string]int
	closed      bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: map[string]string{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, _ fetch.Credentials, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if url == overviewUrl && f.notEnrolled > 0 {
		f.notEnrolled--
		return `<div class="alert">You are not enrolled in, nor teaching any courses on this site.</div>`, nil
	}
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return page, nil
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

func overviewPage(rows ...[3]string) string {
	var b strings.Builder
	b.WriteString(`<table id="overview-grade"><thead><tr><th class="header c0">Course name</th><th class="header c1">Grade</th></tr></thead><tbody>`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr><td class="cell c0"><a href="%s">%s</a></td><td class="cell c1">%s</td></tr>`, r[0], r[1], r[2])
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}

func reportPage(quizGrade, quizFeedback, total string) string {
	return fmt.Sprintf(`<table class="user-grade">
<thead><tr><th class="header">Grade item</th><th class="header">Grade</th><th class="header">Range</th><th class="header">Percentage</th><th class="header">Feedback</th></tr></thead>
<tbody>
<tr class="cat_1"><th id="cat_1_77" class="level1 category">Course</th></tr>
<tr class="cat_1"><th id="row_11_77" class="level2 item"><span class="gradeitemheader">Quiz 1</span></th><td>%s</td><td>0.00–10.00</td><td></td><td>%s</td></tr>
<tr class="cat_1"><th id="row_12_77" class="level2 item"><span class="gradeitemheader">Course total</span></th><td>%s</td><td>0.00–100.00</td><td></td><td></td></tr>
</tbody></table>`, quizGrade, quizFeedback, total)
}

const (
	macmUrl = "https://moodle.fraseric.ca/course/user.php?mode=grade&id=4401&user=77"
	cmptUrl = "https://moodle.fraseric.ca/course/user.php?mode=grade&id=4402&user=77"
	cnqsUrl = "https://moodle.fraseric.ca/course/user.php?mode=grade&id=3900&user=77"
)

func setupMoodle(t *testing.T) (*Moodle, *fakeFetcher, *chrono.FakeTime) {
	fetcher := newFakeFetcher()
	fetcher.pages[overviewUrl] = overviewPage(
		[3]string{macmUrl, "FIC 202503 MACM101_CHAB Discrete Mathematics I", "87.50 %"},
		[3]string{"/course/user.php?mode=grade&id=4402&user=77#top", "FIC 202503 CMPT135_YEJI Programming II", "-"},
		[3]string{cnqsUrl, "FIC 202403 CNQS101_ABCD Canadian Studies", "A (91.00 %)"},
	)
	fetcher.pages[macmUrl] = reportPage("7.00", "", "70.00")
	fetcher.pages[cmptUrl] = reportPage("9.00", "", "B+")
	fetcher.pages[cnqsUrl] = reportPage("10.00", "", "A")

	clock := chrono.NewFakeTime(time.Date(2025, time.October, 10, 12, 0, 0, 0, time.UTC))
	policy := archive.Policy{Window: 1, Clock: clock}
	src, err := NewMoodle(fetcher, overviewUrl, policy, clock, &telemetry.Recorder{})
	require.NoError(t, err)
	src.retryDelay = 0
	return src, fetcher, clock
}

func TestMoodleCapture(t *testing.T) {
	src, fetcher, _ := setupMoodle(t)
	fetcher.errs[cnqsUrl] = errors.New("connection reset by peer")

	capture, err := src.Capture(context.Background(), fetch.Credentials{})
	require.NoError(t, err)
	require.Equal(t, snapshot.Hash(capture.Canonical), capture.Hash)

	book, err := snapshot.ParseGradebook(capture.Canonical)
	require.NoError(t, err)
	require.Len(t, book.Courses, 3)

	macm := book.Courses[0]
	require.Equal(t, int64(4401), macm.CourseID)
	require.Equal(t, "87.50 %", macm.GradeOverview)
	require.Equal(t, "MACM101", macm.CourseCode)
	require.False(t, macm.Archived)
	require.Len(t, macm.Items, 2)
	require.Equal(t, "Course", macm.Items[0].CategoryPath)

	cmpt := book.Courses[1]
	require.Equal(t, cmptUrl, cmpt.URL)
	require.Equal(t, "B+", cmpt.GradeOverview)

	cnqs := book.Courses[2]
	require.True(t, cnqs.Archived)
	require.Empty(t, cnqs.Items)
	require.Equal(t, "connection reset by peer", cnqs.Error)
}

func TestMoodleNotEnrolled(t *testing.T) {
	src, fetcher, _ := setupMoodle(t)
	fetcher.notEnrolled = 2

	_, err := src.Capture(context.Background(), fetch.Credentials{})
	require.NoError(t, err)
	require.Equal(t, 3, fetcher.calls[overviewUrl])

	fetcher.notEnrolled = NotEnrolledRetries + 1
	_, err = src.Capture(context.Background(), fetch.Credentials{})
	require.Error(t, err)
	require.Equal(t, fetch.KindNotEnrolled, fetch.KindOf(err))
}

func TestMoodleReport(t *testing.T) {
	ctx := context.Background()
	src, fetcher, clock := setupMoodle(t)

	first, err := src.Capture(ctx, fetch.Credentials{})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	fetcher.pages[macmUrl] = reportPage("9.00", "Well done", "90.00")
	fetcher.errs[cmptUrl] = errors.New("timeout awaiting response headers")

	second, err := src.Capture(ctx, fetch.Credentials{})
	require.NoError(t, err)

	report, err := src.Report(first.Canonical, second.Canonical)
	require.NoError(t, err)
	require.Contains(t, report.Message, "📙 <b>Moodle update</b>")
	require.Contains(t, report.Message, "<b>MACM101</b> <i>(FIC 202503)</i>")
	require.Contains(t, report.Message, "7/10 → <b>9/10</b> | 💬 Well done")
	require.NotContains(t, report.Message, "CMPT135")

	require.Len(t, report.Recent, 2)
	require.Equal(t, changes.KindGradeFeedback, report.Recent[0].Kind)
	require.Equal(t, "row_11", report.Recent[0].ItemID)
	require.Equal(t, clock.Now(), report.Recent[0].At)

	// the failed course keeps its previous items in the next baseline
	carried, err := snapshot.ParseGradebook(report.Baseline.Canonical)
	require.NoError(t, err)
	cmpt, ok := carried.Course(4402)
	require.True(t, ok)
	require.NotEmpty(t, cmpt.Error)
	require.Len(t, cmpt.Items, 2)
	require.Equal(t, snapshot.Hash(report.Baseline.Canonical), report.Baseline.Hash)

	// once it recovers nothing is reported for it
	delete(fetcher.errs, cmptUrl)
	third, err := src.Capture(ctx, fetch.Credentials{})
	require.NoError(t, err)
	report, err = src.Report(report.Baseline.Canonical, third.Canonical)
	require.NoError(t, err)
	require.Empty(t, report.Message)
	require.Empty(t, report.Recent)

	require.NoError(t, src.Close())
	require.True(t, fetcher.closed)
}

func TestCourseTotal(t *testing.T) {
	require.Equal(t, "B+", CourseTotal([]snapshot.GradeItem{{Name: "Quiz"}, {Name: " Course total ", Grade: "B+"}}))
	require.Equal(t, "88 %", CourseTotal([]snapshot.GradeItem{{Name: "COURSE TOTAL", Percentage: "88 %"}}))
	require.Equal(t, "", CourseTotal(nil))
}

const resultsUrl = "https://learning.fraseric.ca/student/resulttab"

func resultsPage(rows ...[3]string) string {
	var b strings.Builder
	b.WriteString(`<table class="data-table"><thead><tr><th>Term</th><th>Course</th><th>Title</th><th>Credits</th><th>Grade</th></tr></thead><tbody>`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>x</td><td>3</td><td>%s</td></tr>`, r[0], r[1], r[2])
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}

func TestFic(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	fetcher.pages[resultsUrl] = resultsPage(
		[3]string{"Fall 2025", "CMPT130", ""},
		[3]string{"Fall 2025", "MATH151", "B"},
	)
	src := NewFic(fetcher, resultsUrl, "", &telemetry.Recorder{})

	first, err := src.Capture(ctx, fetch.Credentials{})
	require.NoError(t, err)
	require.Equal(t, `{"Fall 2025":{"CMPT130":"","MATH151":"B"}}`, first.Canonical)

	fetcher.pages[resultsUrl] = resultsPage(
		[3]string{"Fall 2025", "CMPT130", "A-"},
		[3]string{"Fall 2025", "MATH151", "B"},
	)
	second, err := src.Capture(ctx, fetch.Credentials{})
	require.NoError(t, err)

	report, err := src.Report(first.Canonical, second.Canonical)
	require.NoError(t, err)
	require.Equal(t, "📗 <b>New grade</b>\n  CMPT130: A-", report.Message)
	require.Equal(t, second, report.Baseline)
	require.Empty(t, report.Recent)

	report, err = src.Report(second.Canonical, second.Canonical)
	require.NoError(t, err)
	require.Empty(t, report.Message)

	_, err = src.Report("{not json", second.Canonical)
	require.Error(t, err)

	fetcher.errs[resultsUrl] = fetch.Fail(fetch.KindAuthInvalid, errors.New("invalid username or password"))
	_, err = src.Capture(ctx, fetch.Credentials{})
	require.Equal(t, fetch.KindAuthInvalid, fetch.KindOf(err))
}
