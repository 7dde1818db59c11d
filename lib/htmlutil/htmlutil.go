// Package htmlutil has small goquery helpers for reading portal pages.
package htmlutil

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Clean replaces non-breaking spaces with plain ones and trims.
func Clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
}

// CollapseSpace cleans s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return whitespaceRun.ReplaceAllString(Clean(s), " ")
}

// Text returns the visible text under sel. Adjacent text nodes are separated
// by a space, so "<b>7</b>/<b>10</b>" reads "7 / 10". Script and style
// contents are skipped.
func Text(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := Clean(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return CollapseSpace(strings.Join(parts, " "))
}

// Classes returns the class list of the first element of sel.
func Classes(sel *goquery.Selection) []string {
	class, _ := sel.Attr("class")
	return strings.Fields(class)
}
