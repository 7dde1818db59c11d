// Package portal holds the http session setup shared by the portal clients.
package portal

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("fic-gradebot/internal/scrapers/portal")

var dumpOutput restyutil.Output

// SetDumpOutput makes clients created afterwards save every page they
// receive, nil turns it off.
func SetDumpOutput(output restyutil.Output) {
	dumpOutput = output
}

const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// NewHttpClient creates a resty client with a cookie jar, a browser user
// agent and a request rate of 2 per second. Redirects are only followed
// within hosts.
func NewHttpClient(tel telemetry.API, hosts ...string) (*resty.Client, error) {
	httpClient := resty.New()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", UserAgent)
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(15),
		resty.DomainCheckRedirectPolicy(hosts...),
	)
	httpClient.SetTimeout(time.Second * 30)

	// 2 requests max per second
	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(2, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.InstrumentClient(httpClient, tracer, dumpOutput)

	return httpClient, nil
}

// Hostname returns the host of rawUrl without its port.
func Hostname(rawUrl string) (string, error) {
	parsed, err := url.Parse(rawUrl)
	if err != nil {
		return "", err
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawUrl)
	}
	return parsed.Hostname(), nil
}

// FinalURL returns the url of the request that produced res, after
// redirects.
func FinalURL(res *resty.Response) *url.URL {
	if res == nil || res.RawResponse == nil || res.RawResponse.Request == nil {
		return &url.URL{}
	}
	return res.RawResponse.Request.URL
}

// Document parses the body of res.
func Document(res *resty.Response) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// ServerError reports whether res is a 5xx response.
func ServerError(res *resty.Response) bool {
	return res != nil && res.StatusCode() >= http.StatusInternalServerError
}

// SamePage reports whether a and b point to the same scheme, host and path,
// ignoring trailing slashes and the query.
func SamePage(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Scheme == b.Scheme &&
		a.Host == b.Host &&
		trimSlash(a.Path) == trimSlash(b.Path)
}

func trimSlash(p string) string {
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
