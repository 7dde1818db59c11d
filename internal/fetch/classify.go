package fetch

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classify maps an unclassified error to a Kind. The portals only tell us
// what went wrong through page text and error strings, this is the only
// place that matches on them.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid") && strings.Contains(msg, "password"):
		return KindAuthInvalid
	case strings.Contains(msg, "invalidlogin"), strings.Contains(msg, "loginerrormessage"):
		return KindAuthInvalid
	case strings.Contains(msg, "samlrequest"), strings.Contains(msg, "sso login did not complete"):
		return KindAuthInteractive
	case strings.Contains(msg, "not enrolled"):
		return KindNotEnrolled
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"):
		return KindTransient
	}
	return KindUnknown
}

const maxErrorLength = 220

// Localize turns a fetch error into the short status line shown to users.
func Localize(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindAuthInvalid:
		return "Invalid login or password."
	case KindAuthInteractive:
		return "Sign-in needs an interactive step, please try again later."
	case KindNotEnrolled:
		return "The portal reports no enrolled courses right now."
	}
	return shorten(err.Error(), maxErrorLength)
}

func shorten(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
