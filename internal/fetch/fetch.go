// Package fetch defines the boundary between the polling core and the
// portal clients: credentials, the fetcher contract and the closed set of
// failure kinds a fetch can end in.
package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Credentials are the portal login of one user, both portals share them.
type Credentials struct {
	Username string
	Password string
}

// Fetcher returns the raw html behind a portal url, signing in with creds
// when the session requires it.
type Fetcher interface {
	Fetch(ctx context.Context, creds Credentials, url string) (string, error)
	// Close releases the session, it is best-effort.
	Close() error
}

// Kind is a classified failure of a fetch.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthInvalid means the portal rejected the credentials.
	KindAuthInvalid
	// KindAuthInteractive means signing in needs a step that cannot be
	// automated with plain form posts (javascript sso, mfa prompts).
	KindAuthInteractive
	// KindNotEnrolled means the portal showed its "not enrolled" banner
	// even after retries.
	KindNotEnrolled
	// KindTransient covers network failures, timeouts and server errors.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindAuthInvalid:
		return "auth-invalid"
	case KindAuthInteractive:
		return "auth-interactive"
	case KindNotEnrolled:
		return "not-enrolled"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Failure is a fetch error with its classification attached.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Err.Error())
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Fail wraps err into a *Failure of the given kind.
func Fail(kind Kind, err error) error {
	return &Failure{Kind: kind, Err: err}
}

// KindOf returns the kind of the first *Failure in err's chain, falling back
// to Classify for errors that were never classified.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return Classify(err)
}
