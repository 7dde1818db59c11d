// Package changes turns two captures of the same source into the events a
// user is notified about.
package changes

import (
	"sort"
	"strings"

	"fic-gradebot/internal/snapshot"
)

// FlatChange is a final grade that appeared or changed.
type FlatChange struct {
	CourseCode string
	Grade      string
}

// DiffFlat returns the non-empty grades of next that differ from prev, a
// missing entry counting as empty. Grades that were cleared are not
// reported. The result is sorted by course code, then grade.
func DiffFlat(prev, next snapshot.Flat) []FlatChange {
	var out []FlatChange
	for term, inner := range next {
		for code, grade := range inner {
			grade = strings.TrimSpace(grade)
			if grade == "" {
				continue
			}
			old := strings.TrimSpace(prev[term][code])
			if old == grade {
				continue
			}
			out = append(out, FlatChange{CourseCode: code, Grade: grade})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CourseCode != out[j].CourseCode {
			return out[i].CourseCode < out[j].CourseCode
		}
		return out[i].Grade < out[j].Grade
	})
	return out
}
