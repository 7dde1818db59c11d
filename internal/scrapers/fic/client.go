// Package fic scrapes the student portal at learning.fraseric.ca, which
// carries the final grades of finished terms.
package fic

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

const DefaultBaseUrl = "https://learning.fraseric.ca"

const (
	LoginPath   = "/user/login"
	LogoutPath  = "/user/logout"
	ResultsPath = "/student/resulttab"
	ProfilePath = "/student/profile"
)

const (
	report_client_login   = "client.login"
	report_client_fetch   = "client.fetch"
	report_client_logout  = "client.logout"
	report_client_profile = "client.profile"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Client is a session with the student portal. It implements fetch.Fetcher.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	tel telemetry.API

	mutex    sync.Mutex
	loggedIn string
}

var _ fetch.Fetcher = (*Client)(nil)

func NewClient(baseUrl string, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("fic_scraper", tel)

	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	parsedBaseUrl, err := url.Parse(strings.TrimRight(baseUrl, "/"))
	if err != nil {
		return nil, err
	}

	httpClient, err := portal.NewHttpClient(tel, parsedBaseUrl.Hostname())
	if err != nil {
		return nil, err
	}
	httpClient.SetBaseURL(parsedBaseUrl.String())

	return &Client{
		BaseUrl: parsedBaseUrl,
		Http:    httpClient,
		tel:     tel,
	}, nil
}

// ResultsUrl is the page ParseResults understands.
func (c *Client) ResultsUrl() string {
	return c.BaseUrl.String() + ResultsPath
}

// Login posts the login form. The portal redirects to its base url on
// success and back to the login page with the username on failure.
func (c *Client) Login(ctx context.Context, creds fetch.Credentials) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.login(ctx, creds)
}

func (c *Client) login(ctx context.Context, creds fetch.Credentials) error {
	c.loggedIn = ""

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": creds.Username,
			"password": creds.Password,
			"x":        "27",
			"y":        "4",
		}).
		Post(LoginPath)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("request: %w", err))
		return fmt.Errorf("fic login: %w", err)
	}

	final := portal.FinalURL(res)
	if portal.SamePage(final, c.BaseUrl) {
		c.loggedIn = creds.Username
		return nil
	}

	if strings.TrimRight(final.Path, "/") == LoginPath &&
		final.Query().Get("username") == creds.Username {
		return fetch.Fail(fetch.KindAuthInvalid, ErrInvalidCredentials)
	}

	if res.IsError() {
		body := string(res.Body())
		if len(body) > 300 {
			body = body[:300]
		}
		err := fmt.Errorf("login failed: %d. %s...", res.StatusCode(), strings.ReplaceAll(body, "\n", " "))
		if portal.ServerError(res) {
			return fetch.Fail(fetch.KindTransient, err)
		}
		c.tel.ReportWarning(report_client_login, err)
		return err
	}

	err = fmt.Errorf("unexpected redirect after login: %s", final.String())
	c.tel.ReportWarning(report_client_login, err)
	return err
}

// Fetch returns the html of a portal page, logging in first when the
// session does not belong to creds. A session that expired in between is
// renewed once.
func (c *Client) Fetch(ctx context.Context, creds fetch.Credentials, endpoint string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.loggedIn != creds.Username || c.loggedIn == "" {
		err := c.login(ctx, creds)
		if err != nil {
			return "", err
		}
	}

	for attempt := 0; ; attempt++ {
		c.tel.ReportDebug(report_client_fetch, endpoint)

		res, err := c.Http.R().
			SetContext(ctx).
			Get(endpoint)
		if err != nil {
			c.tel.ReportBroken(report_client_fetch, fmt.Errorf("request: %w", err), endpoint)
			return "", fmt.Errorf("fic fetch: %w", err)
		}
		if portal.ServerError(res) {
			return "", fetch.Fail(fetch.KindTransient, fmt.Errorf("fic fetch: status %d", res.StatusCode()))
		}

		final := portal.FinalURL(res)
		if strings.TrimRight(final.Path, "/") != LoginPath {
			return string(res.Body()), nil
		}
		if attempt > 0 {
			return "", fmt.Errorf("fic fetch: session was not accepted for %s", endpoint)
		}
		err = c.login(ctx, creds)
		if err != nil {
			return "", err
		}
	}
}

// ProfileName returns the full name shown on the profile page.
func (c *Client) ProfileName(ctx context.Context, creds fetch.Credentials) (string, error) {
	html, err := c.Fetch(ctx, creds, ProfilePath)
	if err != nil {
		c.tel.ReportWarning(report_client_profile, err)
		return "", err
	}
	return ParseProfileName(html), nil
}

// Close logs out of the portal, failures are ignored.
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
