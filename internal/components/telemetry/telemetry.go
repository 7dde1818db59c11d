package telemetry

import (
	"fmt"
)

// API is how components report trouble and progress. Tests swap in a
// Recorder to assert on what was reported.
type API interface {
	// ReportBroken reports a component that failed and needs attention. The
	// id names the component in lowercase, "<type>.<method>", for example
	// "client.login", and the error goes first in params. Packages scope
	// their API so ids stay short.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something odd that did not stop the component,
	// like a portal course that failed while the rest loaded.
	ReportWarning(id string, params ...any)

	// ReportDebug is for tracing what happened, it is dropped unless
	// verbose logging is on.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the latest value of a gauge.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, like a sub-logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
