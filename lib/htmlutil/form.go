package htmlutil

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Input is a named <input> of a form.
type Input struct {
	Name         string
	Type         string
	Value        string
	ID           string
	Autocomplete string
}

// Form is a <form> with its action resolved to an absolute url.
type Form struct {
	Action string
	Method string
	Inputs []Input
}

// Values returns the form's default payload.
func (f Form) Values() url.Values {
	values := url.Values{}
	for _, in := range f.Inputs {
		values.Set(in.Name, in.Value)
	}
	return values
}

// Has reports whether the form has an input with the given name.
func (f Form) Has(name string) bool {
	for _, in := range f.Inputs {
		if in.Name == name {
			return true
		}
	}
	return false
}

// Forms returns every form of the document, resolving actions against
// current. A form without an action posts back to current.
func Forms(doc *goquery.Document, current *url.URL) []Form {
	var out []Form
	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		form := Form{
			Action: current.String(),
			Method: strings.ToLower(strings.TrimSpace(sel.AttrOr("method", "post"))),
		}
		if action := strings.TrimSpace(sel.AttrOr("action", "")); action != "" {
			parsed, err := url.Parse(action)
			if err == nil {
				form.Action = current.ResolveReference(parsed).String()
			}
		}
		if form.Method == "" {
			form.Method = "post"
		}

		sel.Find("input").Each(func(_ int, in *goquery.Selection) {
			name := strings.TrimSpace(in.AttrOr("name", ""))
			if name == "" {
				return
			}
			form.Inputs = append(form.Inputs, Input{
				Name:         name,
				Type:         strings.ToLower(strings.TrimSpace(in.AttrOr("type", ""))),
				Value:        in.AttrOr("value", ""),
				ID:           in.AttrOr("id", ""),
				Autocomplete: in.AttrOr("autocomplete", ""),
			})
		})
		out = append(out, form)
	})
	return out
}
