// Package restyutil adds tracing and page dumps to resty clients.
package restyutil

import (
	"fmt"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// Output receives the body of every response, keyed by a per-client
// sequence number.
type Output interface {
	Write(seq uint64, method, url string, status int, body []byte)
}

type instrumentCtx struct {
	tracer trace.Tracer
	output Output
	seq    *uint64
}

// InstrumentClient wraps every request in a span. tracer defaults to one
// named "resty", output may be nil.
func InstrumentClient(client *resty.Client, tracer trace.Tracer, output Output) {
	if tracer == nil {
		tracer = otel.Tracer("resty")
	}
	var seq uint64
	i := instrumentCtx{tracer: tracer, output: output, seq: &seq}
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

func (i instrumentCtx) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx, _ := i.tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))
	req.SetContext(ctx)
	return nil
}

func (i instrumentCtx) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	// the raw request only exists once the request was sent
	if res.Request.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	}
	if res.RawResponse != nil {
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}

	if i.output != nil {
		seq := atomic.AddUint64(i.seq, 1)
		i.output.Write(seq, res.Request.Method, res.Request.URL, res.StatusCode(), res.Body())
	}
	return nil
}

func (i instrumentCtx) onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")
	if req.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
	}
}
