package changes

import (
	"fic-gradebot/internal/snapshot"
)

// Kind is what changed about a grade item.
type Kind string

const (
	KindNew           Kind = "new"
	KindGrade         Kind = "grade"
	KindFeedback      Kind = "feedback"
	KindGradeFeedback Kind = "grade+feedback"
)

// MaxEventsPerCourse bounds the lines a single notification shows for one
// course. The rest are not sent since the baseline has moved past them.
const MaxEventsPerCourse = 8

// CourseRef is the identity of the course an event belongs to.
type CourseRef struct {
	CourseID   int64
	Name       string
	CourseCode string
	TermLabel  string
	Archived   bool
}

func RefOf(c snapshot.Course) CourseRef {
	return CourseRef{
		CourseID:   c.CourseID,
		Name:       c.Name,
		CourseCode: c.CourseCode,
		TermLabel:  c.TermLabel,
		Archived:   c.Archived,
	}
}

// Event is one changed grade item. Old is nil for items that did not
// exist in the previous capture.
type Event struct {
	Course CourseRef
	Old    *snapshot.GradeItem
	New    snapshot.GradeItem
	Kind   Kind
}

func hasGrade(it snapshot.GradeItem) bool {
	return it.Grade != "" || it.Percentage != ""
}

// DiffGradebook compares every course of next against the same course in
// prev. Courses that failed to fetch and courses only present in prev
// produce nothing. Within a course, events follow the item order of next.
func DiffGradebook(prev, next snapshot.Gradebook) []Event {
	prevCourses := make(map[int64]snapshot.Course, len(prev.Courses))
	for _, c := range prev.Courses {
		if _, ok := prevCourses[c.CourseID]; !ok {
			prevCourses[c.CourseID] = c
		}
	}

	var events []Event
	for _, course := range next.Courses {
		if course.Error != "" {
			continue
		}

		oldItems := map[string]snapshot.GradeItem{}
		for _, it := range prevCourses[course.CourseID].Items {
			if _, ok := oldItems[it.ItemID]; !ok {
				oldItems[it.ItemID] = it
			}
		}

		ref := RefOf(course)
		for _, it := range course.Items {
			if it.ItemID == "" {
				continue
			}

			old, existed := oldItems[it.ItemID]
			if !existed {
				if hasGrade(it) || it.Feedback != "" {
					events = append(events, Event{Course: ref, New: it, Kind: KindNew})
				}
				continue
			}

			gradeChanged := it.Grade != old.Grade || it.Percentage != old.Percentage
			feedbackChanged := it.Feedback != old.Feedback
			gradeTrigger := gradeChanged && hasGrade(it)
			feedbackTrigger := feedbackChanged && it.Feedback != ""

			var kind Kind
			switch {
			case gradeTrigger && feedbackTrigger:
				kind = KindGradeFeedback
			case gradeTrigger:
				kind = KindGrade
			case feedbackTrigger:
				kind = KindFeedback
			default:
				continue
			}

			oldCopy := old
			events = append(events, Event{Course: ref, Old: &oldCopy, New: it, Kind: kind})
		}
	}
	return events
}

// CourseEvents are the events of one course, Omitted counts the events cut
// by the limit.
type CourseEvents struct {
	Course  CourseRef
	Events  []Event
	Omitted int
}

// GroupByCourse groups events by course in the order courses are first
// seen, keeping at most limit events per course. A limit <= 0 keeps all.
func GroupByCourse(events []Event, limit int) []CourseEvents {
	var groups []CourseEvents
	index := map[int64]int{}
	for _, ev := range events {
		i, ok := index[ev.Course.CourseID]
		if !ok {
			i = len(groups)
			index[ev.Course.CourseID] = i
			groups = append(groups, CourseEvents{Course: ev.Course})
		}
		if limit > 0 && len(groups[i].Events) >= limit {
			groups[i].Omitted++
			continue
		}
		groups[i].Events = append(groups[i].Events, ev)
	}
	return groups
}
