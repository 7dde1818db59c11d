package fic

import (
	"strings"

	"fic-gradebot/internal/snapshot"
	"fic-gradebot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ParseResults reads the "Results" table of the student portal into
// term -> course code -> grade. Blank grades become emptyGrade. Anything
// that does not look like the results table yields an empty map.
func ParseResults(html string, emptyGrade string) snapshot.Flat {
	result := snapshot.Flat{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return result
	}
	tbody := doc.Find("table.data-table").First().Find("tbody").First()
	if tbody.Length() == 0 {
		return result
	}

	tbody.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 5 {
			return
		}

		term := htmlutil.Text(tds.Eq(0))
		code := htmlutil.Text(tds.Eq(1))
		grade := htmlutil.Text(tds.Eq(4))
		if term == "" || code == "" {
			return
		}
		if grade == "" {
			grade = emptyGrade
		}
		result.Set(term, code, grade)
	})

	return result
}

// ParseProfileName returns the student's full name from the profile page.
func ParseProfileName(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	// "You are logged in as <strong>NAME (ID)</strong>"
	strong := doc.Find("#user-box strong").First()
	if text := htmlutil.Text(strong); text != "" {
		name, _, _ := strings.Cut(text, "(")
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}

	name := ""
	doc.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if htmlutil.Clean(th.Text()) != "Name:" {
			return true
		}
		name = htmlutil.Text(th.NextAllFiltered("td").First())
		return false
	})
	return name
}
