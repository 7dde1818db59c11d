// Package moodle scrapes moodle.fraseric.ca: the grade overview and each
// course's user grade report. Signing in goes through the student portal's
// SAML single sign-on, with the classic Moodle login form as a fallback.
package moodle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"fic-gradebot/internal/components/assert"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/scrapers/portal"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseUrl    = "https://moodle.fraseric.ca"
	DefaultSsoBaseUrl = "https://learning.fraseric.ca"
)

const (
	OverviewPath = "/grade/report/overview/"
	LoginPath    = "/login/index.php"
	LogoutPath   = "/login/logout.php"
	ssoLoginPath = "/user/login"
)

const (
	report_client_login  = "client.login"
	report_client_sso    = "client.sso"
	report_client_fetch  = "client.fetch"
	report_client_logout = "client.logout"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Client is a Moodle session. It implements fetch.Fetcher and is safe for
// concurrent fetches once signed in.
type Client struct {
	BaseUrl    *url.URL
	SsoBaseUrl *url.URL
	Http       *resty.Client

	tel telemetry.API

	mutex    sync.Mutex
	loggedIn string
}

var _ fetch.Fetcher = (*Client)(nil)

func NewClient(baseUrl, ssoBaseUrl string, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("moodle_scraper", tel)

	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	if ssoBaseUrl == "" {
		ssoBaseUrl = DefaultSsoBaseUrl
	}
	parsedBaseUrl, err := url.Parse(strings.TrimRight(baseUrl, "/"))
	if err != nil {
		return nil, err
	}
	parsedSsoUrl, err := url.Parse(strings.TrimRight(ssoBaseUrl, "/"))
	if err != nil {
		return nil, err
	}

	httpClient, err := portal.NewHttpClient(
		tel,
		parsedBaseUrl.Hostname(),
		parsedSsoUrl.Hostname(),
	)
	if err != nil {
		return nil, err
	}
	httpClient.SetBaseURL(parsedBaseUrl.String())

	return &Client{
		BaseUrl:    parsedBaseUrl,
		SsoBaseUrl: parsedSsoUrl,
		Http:       httpClient,
		tel:        tel,
	}, nil
}

// OverviewUrl is the page ParseOverview understands.
func (c *Client) OverviewUrl() string {
	return c.BaseUrl.String() + OverviewPath
}

// onMoodle reports whether u is a signed in Moodle page.
func (c *Client) onMoodle(u *url.URL) bool {
	return u.Host == c.BaseUrl.Host &&
		!strings.HasPrefix(u.Path, LoginPath)
}

func (c *Client) onSsoLogin(u *url.URL) bool {
	return u.Host == c.SsoBaseUrl.Host &&
		strings.HasPrefix(u.Path, ssoLoginPath)
}

// Login signs in starting from the overview page, which sends signed out
// sessions through single sign-on.
func (c *Client) Login(ctx context.Context, creds fetch.Credentials) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.login(ctx, creds)
}

func (c *Client) login(ctx context.Context, creds fetch.Credentials) error {
	c.loggedIn = ""

	res, err := c.Http.R().
		SetContext(ctx).
		Get(OverviewPath)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("overview request: %w", err))
		return fmt.Errorf("moodle login: %w", err)
	}
	if portal.ServerError(res) {
		return fetch.Fail(fetch.KindTransient, fmt.Errorf("moodle login: status %d", res.StatusCode()))
	}

	final := portal.FinalURL(res)
	switch {
	case c.onMoodle(final):
	case c.onSsoLogin(final):
		err = c.loginSso(ctx, creds, res)
	default:
		err = c.loginClassic(ctx, creds)
	}
	if err != nil {
		return err
	}

	c.loggedIn = creds.Username
	return nil
}

// loginClassic submits Moodle's own login form.
func (c *Client) loginClassic(ctx context.Context, creds fetch.Credentials) error {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(LoginPath)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login page request: %w", err))
		return fmt.Errorf("moodle login: %w", err)
	}
	doc, err := portal.Document(res)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("parse login page: %w", err))
		return fmt.Errorf("moodle login: %w", err)
	}

	form := map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	}
	logintoken := doc.Find("input[name=logintoken]").AttrOr("value", "")
	if logintoken != "" {
		form["logintoken"] = logintoken
	}

	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(LoginPath)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login request: %w", err))
		return fmt.Errorf("moodle login: %w", err)
	}

	final := portal.FinalURL(res)
	switch {
	case final.Host == c.BaseUrl.Host && strings.HasPrefix(final.Path, LoginPath):
		return fetch.Fail(fetch.KindAuthInvalid, ErrInvalidCredentials)
	case c.onSsoLogin(final):
		return c.loginSso(ctx, creds, res)
	case final.Host != c.BaseUrl.Host:
		err := fmt.Errorf("unexpected redirect after moodle login: %s", final.String())
		c.tel.ReportWarning(report_client_login, err)
		return err
	}
	return nil
}

// Fetch returns the html behind endpoint. A session bounced to a login page
// is renewed once.
func (c *Client) Fetch(ctx context.Context, creds fetch.Credentials, endpoint string) (string, error) {
	err := c.ensureLogin(ctx, creds, false)
	if err != nil {
		return "", err
	}

	for attempt := 0; ; attempt++ {
		c.tel.ReportDebug(report_client_fetch, endpoint)

		res, err := c.Http.R().
			SetContext(ctx).
			Get(endpoint)
		if err != nil {
			c.tel.ReportBroken(report_client_fetch, fmt.Errorf("request: %w", err), endpoint)
			return "", fmt.Errorf("moodle fetch: %w", err)
		}
		if portal.ServerError(res) {
			return "", fetch.Fail(fetch.KindTransient, fmt.Errorf("moodle fetch: status %d", res.StatusCode()))
		}
		if c.onMoodle(portal.FinalURL(res)) {
			return string(res.Body()), nil
		}
		if attempt > 0 {
			return "", fmt.Errorf("moodle fetch: session was not accepted for %s", endpoint)
		}

		err = c.ensureLogin(ctx, creds, true)
		if err != nil {
			return "", err
		}
	}
}

func (c *Client) ensureLogin(ctx context.Context, creds fetch.Credentials, force bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !force && c.loggedIn != "" && c.loggedIn == creds.Username {
		return nil
	}
	return c.login(ctx, creds)
}

// Close signs out, failures are ignored.
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.loggedIn == "" {
		return nil
	}
	c.loggedIn = ""

	_, err := c.Http.R().Get(LogoutPath)
	if err != nil {
		c.tel.ReportDebug(report_client_logout, err)
	}
	return nil
}
