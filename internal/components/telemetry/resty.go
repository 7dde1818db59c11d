package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
	report_resty_error    = "resty.error"
)

// InstrumentResty reports every exchange made by client at debug level. 5xx
// responses are reported as warnings with a dump of the exchange, in which
// cookies and password form fields are redacted.
func InstrumentResty(client *resty.Client, tel API) {
	var seq atomic.Uint64

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		n := seq.Add(1)
		req.SetContext(context.WithValue(req.Context(), seqKey{}, n))
		tel.ReportDebug(report_resty_request, n, req.Method, req.URL)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		n, _ := res.Request.Context().Value(seqKey{}).(uint64)
		tel.ReportDebug(report_resty_response, n, res.Status(), res.Time().String())
		if res.StatusCode() >= http.StatusInternalServerError {
			tel.ReportWarning(
				report_resty_response,
				fmt.Errorf("server error: %s", res.Status()),
				dumpExchange(res),
			)
		}
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		tel.ReportBroken(report_resty_error, err, req.Method, req.URL)
	})
}

type seqKey struct{}

const redacted = "<redacted>"

func isSecretField(key string) bool {
	return strings.Contains(strings.ToLower(key), "pass")
}

func redactForm(form url.Values) string {
	if len(form) == 0 {
		return ""
	}
	safe := url.Values{}
	for k, vals := range form {
		if isSecretField(k) {
			safe[k] = []string{redacted}
			continue
		}
		safe[k] = vals
	}
	return safe.Encode()
}

func writeHeaders(b *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := headers[k]
		if strings.EqualFold(k, "cookie") || strings.EqualFold(k, "set-cookie") {
			vals = []string{redacted}
		}
		for _, v := range vals {
			fmt.Fprintf(b, "%s: %s\n", k, v)
		}
	}
}

func dumpExchange(res *resty.Response) string {
	var b strings.Builder
	req := res.Request

	fmt.Fprintf(&b, "> %s %s\n", req.Method, req.URL)
	if req.RawRequest != nil {
		writeHeaders(&b, req.RawRequest.Header)
	}
	if form := redactForm(req.FormData); form != "" {
		fmt.Fprintf(&b, "\n%s\n", form)
	}

	fmt.Fprintf(&b, "\n< %s\n", res.Status())
	writeHeaders(&b, res.Header())
	fmt.Fprintf(&b, "\n%s", res.String())
	return b.String()
}
