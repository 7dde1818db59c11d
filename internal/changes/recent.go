package changes

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxRecent is the number of recent events kept per user.
const MaxRecent = 50

// RecentEvent is the stored projection of an Event.
type RecentEvent struct {
	ID              string    `json:"id"`
	At              time.Time `json:"ts"`
	CourseID        int64     `json:"course_id"`
	CourseCode      string    `json:"course_code"`
	TermLabel       string    `json:"term_label"`
	Archived        bool      `json:"archived"`
	ItemID          string    `json:"item_id"`
	ItemName        string    `json:"item_name"`
	NewValue        string    `json:"new_value"`
	FeedbackChanged bool      `json:"feedback_changed"`
	FeedbackSnippet string    `json:"feedback_snippet"`
	Kind            Kind      `json:"kind"`
}

// Compact projects events into recent events stamped with now. Events
// without a course id or item id are dropped.
func Compact(events []Event, now time.Time) []RecentEvent {
	out := make([]RecentEvent, 0, len(events))
	for _, ev := range events {
		if ev.Course.CourseID <= 0 || strings.TrimSpace(ev.New.ItemID) == "" {
			continue
		}

		newValue := DisplayValue(ev.New)
		newFeedback := strings.TrimSpace(ev.New.Feedback)
		oldValue := NoValue
		oldFeedback := ""
		if ev.Old != nil {
			oldValue = DisplayValue(*ev.Old)
			oldFeedback = strings.TrimSpace(ev.Old.Feedback)
		}

		feedbackChanged := newFeedback != "" && newFeedback != oldFeedback
		gradeChanged := newValue != NoValue && newValue != oldValue

		kind := ev.Kind
		switch {
		case ev.Old == nil:
			kind = KindNew
		case gradeChanged && feedbackChanged:
			kind = KindGradeFeedback
		case gradeChanged:
			kind = KindGrade
		case feedbackChanged:
			kind = KindFeedback
		}

		snippet := ""
		if feedbackChanged {
			snippet = Snippet(newFeedback)
		}

		out = append(out, RecentEvent{
			ID:              uuid.NewString(),
			At:              now,
			CourseID:        ev.Course.CourseID,
			CourseCode:      CourseLabel(ev.Course),
			TermLabel:       strings.TrimSpace(ev.Course.TermLabel),
			Archived:        ev.Course.Archived,
			ItemID:          strings.TrimSpace(ev.New.ItemID),
			ItemName:        CleanItemName(ev.New.Name),
			NewValue:        newValue,
			FeedbackChanged: feedbackChanged,
			FeedbackSnippet: snippet,
			Kind:            kind,
		})
	}
	return out
}

// PushRecent puts fresh in front of existing and keeps the MaxRecent newest.
func PushRecent(existing, fresh []RecentEvent) []RecentEvent {
	merged := make([]RecentEvent, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	if len(merged) > MaxRecent {
		merged = merged[:MaxRecent]
	}
	return merged
}

// ParseRecent decodes a stored list, an empty string is an empty list.
func ParseRecent(s string) ([]RecentEvent, error) {
	if strings.TrimSpace(s) == "" {
		return []RecentEvent{}, nil
	}
	var out []RecentEvent
	err := json.Unmarshal([]byte(s), &out)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []RecentEvent{}
	}
	return out, nil
}
