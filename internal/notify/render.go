package notify

import (
	"fmt"
	"html"
	"strings"

	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/db"
)

// Escape makes s safe inside Telegram HTML.
func Escape(s string) string {
	return html.EscapeString(s)
}

func sourceTitle(source db.Source) string {
	if source == db.SourceMoodle {
		return "Moodle notifications"
	}
	return "Notifications"
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// FicGrades renders final grades that appeared or changed.
func FicGrades(grades []changes.FlatChange) string {
	if len(grades) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("📗 <b>")
	b.WriteString(plural(len(grades), "New grade"))
	b.WriteString("</b>")
	for _, g := range grades {
		fmt.Fprintf(&b, "\n  %s: %s", Escape(g.CourseCode), Escape(g.Grade))
	}
	return b.String()
}

func moodleLine(ev changes.Event) string {
	newValue := changes.DisplayValue(ev.New)

	var parts []string
	if ev.Old != nil {
		oldValue := changes.DisplayValue(*ev.Old)
		if oldValue != newValue && newValue != changes.NoValue {
			parts = append(parts, fmt.Sprintf("%s → <b>%s</b>", Escape(oldValue), Escape(newValue)))
		}
	} else {
		parts = append(parts, fmt.Sprintf("new: <b>%s</b>", Escape(newValue)))
	}

	oldFeedback := ""
	if ev.Old != nil {
		oldFeedback = strings.TrimSpace(ev.Old.Feedback)
	}
	newFeedback := strings.TrimSpace(ev.New.Feedback)
	if newFeedback != "" && newFeedback != oldFeedback {
		parts = append(parts, "💬 "+Escape(changes.Snippet(newFeedback)))
	}

	if len(parts) == 0 {
		return ""
	}
	name := changes.CleanItemName(ev.New.Name)
	return fmt.Sprintf("   - <b>%s</b>: %s", Escape(name), strings.Join(parts, " | "))
}

// MoodleUpdate renders item events grouped by course, at most
// changes.MaxEventsPerCourse lines per course.
func MoodleUpdate(events []changes.Event) string {
	if len(events) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("📙 <b>Moodle update</b>\n")
	for _, group := range changes.GroupByCourse(events, changes.MaxEventsPerCourse) {
		b.WriteString("\n• <b>")
		b.WriteString(Escape(changes.CourseLabel(group.Course)))
		b.WriteString("</b>")
		if term := strings.TrimSpace(group.Course.TermLabel); term != "" {
			fmt.Fprintf(&b, " <i>(%s)</i>", Escape(term))
		}
		for _, ev := range group.Events {
			line := moodleLine(ev)
			if line == "" {
				continue
			}
			b.WriteString("\n")
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// AutoOff tells the user a source was switched off when its lease ran out.
func AutoOff(source db.Source, leaseDays int) string {
	return fmt.Sprintf(
		"🔕 <b>%s turned off automatically.</b>\n\n"+
			"Notifications can stay enabled for <b>%d days</b> only. "+
			"You can enable them again in Settings.",
		sourceTitle(source), leaseDays,
	)
}

// Reminder warns the user that a source is about to be switched off.
func Reminder(source db.Source, daysLeft, leaseDays int) string {
	head := "Reminder"
	if source == db.SourceMoodle {
		head = "Reminder (Moodle)"
	}
	return fmt.Sprintf(
		"⏳ <b>%s</b>\n\n"+
			"Notifications will be turned off in <b>%d</b> %s.\n"+
			"(They can stay enabled for <b>%d days</b> only.)",
		head, daysLeft, plural(daysLeft, "day"), leaseDays,
	)
}
