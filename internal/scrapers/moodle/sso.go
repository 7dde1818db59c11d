package moodle

import (
	"context"
	"fmt"
	"strings"

	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/scrapers/portal"
	"fic-gradebot/lib/htmlutil"

	"github.com/go-resty/resty/v2"
)

const maxSsoHops = 10

func samlForm(forms []htmlutil.Form) (htmlutil.Form, bool) {
	for _, f := range forms {
		if f.Has("SAMLResponse") || f.Has("RelayState") {
			return f, true
		}
	}
	return htmlutil.Form{}, false
}

var userFieldHints = []string{"user", "email", "login", "name"}

// loginForm picks the first form with a password input and guesses which
// of its fields takes the username.
func loginForm(forms []htmlutil.Form) (form htmlutil.Form, userField, passField string, ok bool) {
	for _, f := range forms {
		for _, in := range f.Inputs {
			if in.Type == "password" {
				form = f
				ok = true
				break
			}
		}
		if ok {
			break
		}
	}
	if !ok {
		return htmlutil.Form{}, "", "", false
	}

	for _, in := range form.Inputs {
		switch in.Type {
		case "password":
			passField = in.Name
		case "text", "email", "":
			hint := strings.ToLower(in.Name + " " + in.ID + " " + in.Autocomplete)
			for _, h := range userFieldHints {
				if strings.Contains(hint, h) {
					userField = in.Name
					break
				}
			}
		}
	}
	if userField == "" {
		for _, in := range form.Inputs {
			if in.Type == "text" || in.Type == "email" {
				userField = in.Name
				break
			}
		}
	}
	return form, userField, passField, true
}

func (c *Client) submit(ctx context.Context, form htmlutil.Form, values map[string]string) (*resty.Response, error) {
	req := c.Http.R().SetContext(ctx)
	if form.Method == "get" {
		return req.SetQueryParams(values).Get(form.Action)
	}
	return req.SetFormData(values).Post(form.Action)
}

func formValues(form htmlutil.Form) map[string]string {
	values := map[string]string{}
	for _, in := range form.Inputs {
		values[in.Name] = in.Value
	}
	return values
}

// loginSso walks the single sign-on pages starting at res: SAML handoff
// forms are submitted as they are and login forms get the credentials. The
// walk ends once a response lands back on Moodle.
func (c *Client) loginSso(ctx context.Context, creds fetch.Credentials, res *resty.Response) error {
	for hop := 0; hop < maxSsoHops; hop++ {
		current := portal.FinalURL(res)
		if c.onMoodle(current) {
			return nil
		}

		doc, err := portal.Document(res)
		if err != nil {
			c.tel.ReportBroken(report_client_sso, fmt.Errorf("parse: %w", err), current.String())
			return fmt.Errorf("moodle sso: %w", err)
		}
		forms := htmlutil.Forms(doc, current)

		if form, ok := samlForm(forms); ok {
			c.tel.ReportDebug(report_client_sso, "saml handoff", form.Action)
			res, err = c.submit(ctx, form, formValues(form))
			if err != nil {
				return fmt.Errorf("moodle sso: saml handoff: %w", err)
			}
			continue
		}

		form, userField, passField, ok := loginForm(forms)
		if !ok {
			break
		}
		values := formValues(form)
		if userField != "" {
			values[userField] = creds.Username
		}
		values[passField] = creds.Password

		c.tel.ReportDebug(report_client_sso, "submit login form", form.Action)
		res, err = c.submit(ctx, form, values)
		if err != nil {
			return fmt.Errorf("moodle sso: login form: %w", err)
		}

		// the student portal sends rejected logins back to its login page
		// with the username filled in
		next := portal.FinalURL(res)
		if c.onSsoLogin(next) && next.Query().Get("username") == creds.Username {
			return fetch.Fail(fetch.KindAuthInvalid, ErrInvalidCredentials)
		}
	}

	// a signed in student portal session may finish the handoff on its own
	res, err := c.Http.R().
		SetContext(ctx).
		Get(OverviewPath)
	if err != nil {
		return fmt.Errorf("moodle sso: %w", err)
	}
	final := portal.FinalURL(res)
	if c.onMoodle(final) {
		return nil
	}

	err = fmt.Errorf("Moodle SSO login did not complete (stuck at: %s)", final.String())
	c.tel.ReportWarning(report_client_sso, err)
	return fetch.Fail(fetch.KindAuthInteractive, err)
}
