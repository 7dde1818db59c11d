package moodle

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"fic-gradebot/internal/snapshot"
	"fic-gradebot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var (
	levelRegex       = regexp.MustCompile(`^level(\d+)`)
	categoryIdRegex  = regexp.MustCompile(`^cat_(\d+)`)
	rowIdRegex       = regexp.MustCompile(`^(row_\d+)`)
	expandTokenRegex = regexp.MustCompile(`(?i)\b(Collapse|Expand)\b`)
)

type column int

const (
	columnIgnored column = iota
	columnGrade
	columnRange
	columnPercentage
	columnFeedback
)

type category struct {
	level int
	name  string
}

func rowLevel(classes []string) int {
	for _, c := range classes {
		m := levelRegex.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		level, err := strconv.Atoi(m[1])
		if err == nil {
			return level
		}
	}
	return 0
}

func hasClass(classes []string, class string) bool {
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}

func stripExpandCollapse(s string) string {
	return htmlutil.CollapseSpace(expandTokenRegex.ReplaceAllString(s, ""))
}

func headerRow(rows *goquery.Selection) *goquery.Selection {
	var header *goquery.Selection
	rows.EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		ths := tr.Find("th")
		if ths.Length() == 0 {
			return true
		}
		all := true
		ths.EachWithBreak(func(_ int, th *goquery.Selection) bool {
			all = hasClass(htmlutil.Classes(th), "header")
			return all
		})
		if all {
			header = tr
			return false
		}
		return true
	})
	if header == nil {
		return rows.First()
	}
	return header
}

func columnsOf(header *goquery.Selection) []column {
	var columns []column
	header.Find("th").Slice(1, goquery.ToEnd).Each(func(_ int, th *goquery.Selection) {
		text := strings.ToLower(htmlutil.Text(th))
		switch {
		case strings.HasPrefix(text, "grade") && !strings.Contains(text, "item"):
			columns = append(columns, columnGrade)
		case strings.Contains(text, "range"):
			columns = append(columns, columnRange)
		case strings.Contains(text, "percentage"):
			columns = append(columns, columnPercentage)
		case strings.Contains(text, "feedback"):
			columns = append(columns, columnFeedback)
		default:
			columns = append(columns, columnIgnored)
		}
	})
	return columns
}

func isCategoryHeader(th *goquery.Selection) bool {
	id := th.AttrOr("id", "")
	return strings.HasPrefix(id, "cat_") && hasClass(htmlutil.Classes(th), "category")
}

func categoriesOf(rows *goquery.Selection) map[string]category {
	categories := map[string]category{}
	rows.Each(func(_ int, tr *goquery.Selection) {
		th := tr.Find("th").First()
		if th.Length() == 0 || !isCategoryHeader(th) {
			return
		}
		m := categoryIdRegex.FindStringSubmatch(th.AttrOr("id", ""))
		if m == nil {
			return
		}
		if _, exists := categories[m[1]]; exists {
			return
		}
		name := stripExpandCollapse(htmlutil.Text(th))
		if name == "" {
			return
		}
		categories[m[1]] = category{
			level: rowLevel(htmlutil.Classes(th)),
			name:  name,
		}
	})
	return categories
}

func fallbackItemId(thId string, rowClasses []string, text string) string {
	raw := thId + "|" + strings.Join(rowClasses, "|") + "|" + text
	sum := sha1.Sum([]byte(raw))
	return "row_" + hex.EncodeToString(sum[:])[:10]
}

func categoryPath(rowClasses []string, categories map[string]category) string {
	var found []category
	for _, c := range rowClasses {
		m := categoryIdRegex.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		if cat, ok := categories[m[1]]; ok {
			found = append(found, cat)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].level < found[j].level
	})

	names := make([]string, len(found))
	for i, cat := range found {
		names[i] = cat.name
	}
	return strings.Join(names, snapshot.CategorySeparator)
}

// ParseReport reads a course's user grade report
// (course/user.php?mode=grade) into its grade items and aggregations, in
// page order. Category header rows only name the categories, they are not
// returned as items. Columns are found by their header so reports without
// a grade column still parse.
func ParseReport(html string) []snapshot.GradeItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return []snapshot.GradeItem{}
	}
	table := doc.Find("table.user-grade").First()
	if table.Length() == 0 {
		return []snapshot.GradeItem{}
	}

	rows := table.Find("tr")
	columns := columnsOf(headerRow(rows))
	categories := categoriesOf(rows)

	items := []snapshot.GradeItem{}
	rows.Each(func(_ int, tr *goquery.Selection) {
		rowClasses := htmlutil.Classes(tr)
		if hasClass(rowClasses, "spacer") {
			return
		}
		th := tr.Find("th").First()
		if th.Length() == 0 {
			return
		}
		thClasses := htmlutil.Classes(th)
		if hasClass(thClasses, "header") || isCategoryHeader(th) {
			return
		}

		thId := th.AttrOr("id", "")
		itemId := ""
		if m := rowIdRegex.FindStringSubmatch(thId); m != nil {
			itemId = m[1]
		} else {
			itemId = fallbackItemId(thId, rowClasses, htmlutil.Text(th))
		}

		name := ""
		link := ""
		hdr := th.Find(".gradeitemheader").First()
		if hdr.Length() > 0 {
			name = htmlutil.Clean(hdr.AttrOr("title", ""))
			if name == "" {
				name = htmlutil.Text(hdr)
			}
			if goquery.NodeName(hdr) == "a" {
				link = strings.TrimSpace(hdr.AttrOr("href", ""))
			}
		} else {
			name = htmlutil.Text(th)
		}

		item := snapshot.GradeItem{
			ItemID:       itemId,
			Name:         htmlutil.CollapseSpace(name),
			Link:         link,
			Level:        rowLevel(thClasses),
			CategoryPath: categoryPath(rowClasses, categories),
		}

		tr.Find("td").Each(func(i int, td *goquery.Selection) {
			if i >= len(columns) || columns[i] == columnIgnored {
				return
			}
			value := htmlutil.Text(td)
			if isDash(value) {
				value = ""
			}
			switch columns[i] {
			case columnGrade:
				item.Grade = value
			case columnRange:
				item.Range = value
			case columnPercentage:
				item.Percentage = value
			case columnFeedback:
				item.Feedback = value
			}
		})

		items = append(items, item)
	})

	return items
}
