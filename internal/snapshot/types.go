package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GradeRecord is one row of the final grades page.
type GradeRecord struct {
	Term       string
	CourseCode string
	Grade      string
}

// Flat is the final grades page keyed by term, then course code.
type Flat map[string]map[string]string

// Set stores a grade, the last write for a (term, code) pair wins.
func (f Flat) Set(term, code, grade string) {
	inner, ok := f[term]
	if !ok {
		inner = map[string]string{}
		f[term] = inner
	}
	inner[code] = grade
}

// Records returns every grade sorted by term, then course code.
func (f Flat) Records() []GradeRecord {
	var out []GradeRecord
	for term, inner := range f {
		for code, grade := range inner {
			out = append(out, GradeRecord{Term: term, CourseCode: code, Grade: grade})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Term != out[j].Term {
			return out[i].Term < out[j].Term
		}
		return out[i].CourseCode < out[j].CourseCode
	})
	return out
}

func FlatFromRecords(records []GradeRecord) Flat {
	out := Flat{}
	for _, r := range records {
		out.Set(r.Term, r.CourseCode, r.Grade)
	}
	return out
}

// CategorySeparator joins category names in GradeItem.CategoryPath.
const CategorySeparator = " / "

// GradeItem is one graded row (an item or an aggregation) of a course's
// grade report.
type GradeItem struct {
	// ItemID is stable within a course.
	ItemID       string `json:"item_id"`
	Name         string `json:"name"`
	Grade        string `json:"grade"`
	Range        string `json:"range"`
	Percentage   string `json:"percentage"`
	Feedback     string `json:"feedback"`
	Link         string `json:"link,omitempty"`
	Level        int    `json:"level"`
	CategoryPath string `json:"category_path"`
}

// Course is a course of the gradebook together with its grade items.
type Course struct {
	CourseID      int64       `json:"course_id"`
	Name          string      `json:"name"`
	URL           string      `json:"url"`
	GradeOverview string      `json:"grade_overview"`
	Archived      bool        `json:"archived"`
	TermLabel     string      `json:"term_label"`
	CourseCode    string      `json:"course_code"`
	Items         []GradeItem `json:"items"`
	// Error is set when the course's report could not be fetched, Items is
	// then empty or partial.
	Error string `json:"error,omitempty"`
}

// Gradebook is a capture of every course of one user.
type Gradebook struct {
	FetchedAt time.Time `json:"fetched_at"`
	Courses   []Course  `json:"courses"`
}

// NewCourse validates the identity of a course record.
func NewCourse(c Course) (Course, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.URL = strings.TrimSpace(c.URL)
	if c.CourseID <= 0 {
		return Course{}, fmt.Errorf("course id must be positive, got %d", c.CourseID)
	}
	if c.Name == "" {
		return Course{}, fmt.Errorf("course %d has no name", c.CourseID)
	}
	if !strings.Contains(c.URL, "course/user.php") {
		return Course{}, fmt.Errorf("course %d has an invalid report url %q", c.CourseID, c.URL)
	}
	c.Items = uniqueItems(c.Items)
	return c, nil
}

func uniqueItems(items []GradeItem) []GradeItem {
	if items == nil {
		return []GradeItem{}
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]GradeItem, 0, len(items))
	for _, it := range items {
		if it.ItemID == "" {
			continue
		}
		if _, ok := seen[it.ItemID]; ok {
			continue
		}
		seen[it.ItemID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// NewGradebook drops invalid courses and keeps the first occurrence of
// every course id.
func NewGradebook(fetchedAt time.Time, courses []Course) Gradebook {
	out := Gradebook{FetchedAt: fetchedAt, Courses: []Course{}}
	seen := map[int64]struct{}{}
	for _, c := range courses {
		valid, err := NewCourse(c)
		if err != nil {
			continue
		}
		if _, ok := seen[valid.CourseID]; ok {
			continue
		}
		seen[valid.CourseID] = struct{}{}
		out.Courses = append(out.Courses, valid)
	}
	return out
}

// Course returns the course with the given id.
func (g Gradebook) Course(id int64) (Course, bool) {
	for _, c := range g.Courses {
		if c.CourseID == id {
			return c, true
		}
	}
	return Course{}, false
}

// WithBaselineItems returns a copy of g where every course that failed to
// fetch keeps the items it had in prev. The course still carries its error.
func (g Gradebook) WithBaselineItems(prev Gradebook) Gradebook {
	out := Gradebook{FetchedAt: g.FetchedAt, Courses: make([]Course, len(g.Courses))}
	for i, c := range g.Courses {
		if c.Error != "" && len(c.Items) == 0 {
			if old, ok := prev.Course(c.CourseID); ok {
				c.Items = append([]GradeItem(nil), old.Items...)
			}
		}
		out.Courses[i] = c
	}
	return out
}
