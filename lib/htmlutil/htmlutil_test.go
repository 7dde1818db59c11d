package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestText(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{"nested", `<td><b>7</b>/<b>10</b></td>`, "7 / 10"},
		{"nbsp", "<td>\u00a0A-\u00a0</td>", "A-"},
		{"newlines", "<td>Course\n\t\ttotal</td>", "Course total"},
		{"script", `<td>B+<script>var x = 1;</script></td>`, "B+"},
		{"empty", `<td>  </td>`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := parse(t, "<table><tr>"+tc.html+"</tr></table>")
			require.Equal(t, tc.want, Text(doc.Find("td")))
		})
	}
}

func TestClasses(t *testing.T) {
	doc := parse(t, `<table><tr class=" level2  item cat_12 "><td>x</td></tr></table>`)
	require.Equal(t, []string{"level2", "item", "cat_12"}, Classes(doc.Find("tr")))
	require.Empty(t, Classes(doc.Find("td")))
}

func TestForms(t *testing.T) {
	doc := parse(t, `
		<form action="/login/index.php" method="POST" id="login">
			<input type="hidden" name="logintoken" value="tok">
			<input type="text" name="username" id="username" autocomplete="username">
			<input type="password" name="password">
			<input type="submit">
		</form>
		<form><input name="SAMLResponse" value="abc"></form>`)
	current, err := url.Parse("https://moodle.example.com/login/?x=1")
	require.NoError(t, err)

	forms := Forms(doc, current)
	require.Len(t, forms, 2)

	login := forms[0]
	require.Equal(t, "https://moodle.example.com/login/index.php", login.Action)
	require.Equal(t, "post", login.Method)
	require.True(t, login.Has("password"))
	require.False(t, login.Has("SAMLResponse"))
	diff := cmp.Diff(url.Values{
		"logintoken": {"tok"},
		"username":   {""},
		"password":   {""},
	}, login.Values())
	require.Empty(t, diff)

	require.Equal(t, current.String(), forms[1].Action)
	require.Equal(t, "abc", forms[1].Values().Get("SAMLResponse"))
}
