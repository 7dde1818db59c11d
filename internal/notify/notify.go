// Package notify renders change events into chat messages and delivers
// them.
package notify

import (
	"context"
	"errors"

	"fic-gradebot/internal/components/telemetry"
)

// Notifier delivers a rendered message to a user. Messages use Telegram's
// HTML subset.
type Notifier interface {
	Send(ctx context.Context, userID int64, message string) error
}

// Multi sends every message through all of its notifiers.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, userID int64, message string) error {
	var errs []error
	for _, n := range m {
		err := n.Send(ctx, userID, message)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log only reports messages, it is used when no transport is configured.
type Log struct {
	tel telemetry.API
}

func NewLog(tel telemetry.API) Log {
	return Log{tel: telemetry.NewScopedAPI("notify_log", tel)}
}

func (l Log) Send(_ context.Context, userID int64, message string) error {
	l.tel.ReportDebug("send", userID, message)
	return nil
}
