package sources

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"fic-gradebot/internal/archive"
	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/components/assert"
	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/notify"
	"fic-gradebot/internal/scrapers/moodle"
	"fic-gradebot/internal/snapshot"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("fic-gradebot/internal/sources")

const (
	report_course_fetch  = "course.fetch"
	report_course_errors = "course.errors"
	report_not_enrolled  = "overview.not-enrolled"
	report_course_sanity = "overview.sanitize"
)

const (
	// ReportConcurrency bounds the course reports fetched at once.
	ReportConcurrency  = 6
	NotEnrolledRetries = 3
	NotEnrolledDelay   = 800 * time.Millisecond
)

var ErrNotEnrolled = errors.New("moodle shows not enrolled")

// Moodle watches the per-course grade reports.
type Moodle struct {
	fetcher     fetch.Fetcher
	overviewUrl *url.URL
	policy      archive.Policy
	time        chrono.TimeAPI
	tel         telemetry.API
	// retryDelay is NotEnrolledDelay outside of tests.
	retryDelay time.Duration
}

func NewMoodle(
	fetcher fetch.Fetcher,
	overviewUrl string,
	policy archive.Policy,
	time chrono.TimeAPI,
	tel telemetry.API,
) (*Moodle, error) {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	parsed, err := url.Parse(overviewUrl)
	if err != nil {
		return nil, err
	}
	return &Moodle{
		fetcher:     fetcher,
		overviewUrl: parsed,
		policy:      policy,
		time:        time,
		tel:         telemetry.NewScopedAPI("moodle_source", tel),
		retryDelay:  NotEnrolledDelay,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// overview fetches the overview page, refetching while Moodle shows its
// "not enrolled" notice.
func (s *Moodle) overview(ctx context.Context, creds fetch.Credentials) (string, error) {
	html, err := s.fetcher.Fetch(ctx, creds, s.overviewUrl.String())
	if err != nil {
		return "", err
	}
	for i := 0; i < NotEnrolledRetries && moodle.NotEnrolled(html); i++ {
		err := sleep(ctx, s.retryDelay)
		if err != nil {
			return "", err
		}
		html, err = s.fetcher.Fetch(ctx, creds, s.overviewUrl.String())
		if err != nil {
			return "", err
		}
	}
	if moodle.NotEnrolled(html) {
		s.tel.ReportWarning(report_not_enrolled, NotEnrolledRetries)
		return "", fetch.Fail(fetch.KindNotEnrolled, ErrNotEnrolled)
	}
	return html, nil
}

// courseUrl resolves a report link against the overview page, fragments
// are dropped.
func (s *Moodle) courseUrl(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := s.overviewUrl.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

func (s *Moodle) sanitize(overview []moodle.OverviewCourse) []snapshot.Course {
	out := make([]snapshot.Course, 0, len(overview))
	seen := map[int64]struct{}{}
	for _, oc := range overview {
		link := s.courseUrl(oc.URL)
		course, err := snapshot.NewCourse(snapshot.Course{
			CourseID:      oc.CourseID,
			Name:          oc.Name,
			URL:           link,
			GradeOverview: oc.Grade,
			Archived:      s.policy.Archived(oc.Archived, oc.TermLabel, oc.CourseCode),
			TermLabel:     oc.TermLabel,
			CourseCode:    oc.CourseCode,
		})
		if err != nil {
			s.tel.ReportDebug(report_course_sanity, err)
			continue
		}
		if _, ok := seen[course.CourseID]; ok {
			continue
		}
		seen[course.CourseID] = struct{}{}
		out = append(out, course)
	}
	return out
}

// CourseTotal is the overall grade of a course from its "Course total"
// row, preferring the grade over the percentage.
func CourseTotal(items []snapshot.GradeItem) string {
	for _, it := range items {
		if !strings.EqualFold(strings.TrimSpace(it.Name), "course total") {
			continue
		}
		if g := strings.TrimSpace(it.Grade); g != "" {
			return g
		}
		if p := strings.TrimSpace(it.Percentage); p != "" {
			return p
		}
	}
	return ""
}

func (s *Moodle) fetchReport(ctx context.Context, creds fetch.Credentials, course *snapshot.Course) {
	ctx, span := tracer.Start(ctx, "moodle.course-report")
	defer span.End()
	span.SetAttributes(attribute.Int64("course_id", course.CourseID))

	html, err := s.fetcher.Fetch(ctx, creds, course.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch course report")
		s.tel.ReportWarning(report_course_fetch, err, course.CourseID)
		course.Items = []snapshot.GradeItem{}
		course.Error = fetch.Localize(err)
		return
	}

	course.Items = moodle.ParseReport(html)
	if strings.TrimSpace(course.GradeOverview) == "" {
		course.GradeOverview = CourseTotal(course.Items)
	}
}

func (s *Moodle) Capture(ctx context.Context, creds fetch.Credentials) (Capture, error) {
	html, err := s.overview(ctx, creds)
	if err != nil {
		return Capture{}, err
	}
	courses := s.sanitize(moodle.ParseOverview(html, ""))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ReportConcurrency)
	for i := range courses {
		course := &courses[i]
		group.Go(func() error {
			s.fetchReport(groupCtx, creds, course)
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return Capture{}, err
	}

	failed := 0
	for _, c := range courses {
		if c.Error != "" {
			failed++
		}
	}
	s.tel.ReportCount(report_course_errors, int64(failed))

	gradebook := snapshot.NewGradebook(s.time.Now(), courses)
	s.tel.ReportDebug("captured", len(gradebook.Courses))
	return newCapture(gradebook)
}

func (s *Moodle) Report(baseline, current string) (Report, error) {
	prev, err := snapshot.ParseGradebook(baseline)
	if err != nil {
		return Report{}, err
	}
	next, err := snapshot.ParseGradebook(current)
	if err != nil {
		return Report{}, err
	}

	events := changes.DiffGradebook(prev, next)
	carried, err := newCapture(next.WithBaselineItems(prev))
	if err != nil {
		return Report{}, err
	}
	return Report{
		Baseline: carried,
		Message:  notify.MoodleUpdate(events),
		Recent:   changes.Compact(events, s.time.Now()),
	}, nil
}

func (s *Moodle) Close() error {
	return s.fetcher.Close()
}
