package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fic-gradebot/internal/db"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/notify"
	"fic-gradebot/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type task struct {
	userID  int64
	svc     *Service
	cancel  context.CancelFunc
	done    chan struct{}
	sources Sources
	// due is when each source is captured next, a missing entry is due
	// right away.
	due map[db.Source]time.Time
}

func (t *task) run(ctx context.Context) {
	defer close(t.done)
	defer t.svc.forget(t)
	defer t.cancel()

	err := t.safeLoop(ctx)
	t.close()

	if err != nil && ctx.Err() == nil {
		t.svc.tel.ReportBroken(report_task_failed, err, t.userID)
		recordErr := t.svc.store.SetError(context.Background(), t.userID, db.SourceFic, fmt.Sprintf("Monitor error: %v", err))
		if recordErr != nil {
			t.svc.tel.ReportWarning(report_task_failed, recordErr, t.userID)
		}
		return
	}
	t.svc.tel.ReportDebug(report_task_exit, t.userID)
}

func (t *task) safeLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.loop(ctx)
}

func (t *task) loop(ctx context.Context) error {
	for {
		wait, done, err := t.wake(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		err = t.svc.sleep(ctx, wait)
		if err != nil {
			return nil
		}
	}
}

// close releases the portal sessions, errors are only reported.
func (t *task) close() {
	for _, source := range db.Sources {
		src := t.sources.get(source)
		if src == nil {
			continue
		}
		err := src.Close()
		if err != nil {
			t.svc.tel.ReportDebug(report_close, err, t.userID, source)
		}
	}
	t.sources = Sources{}
}

// wake runs one iteration of the task. It returns how long to sleep
// afterwards, or done when the user has no active source left.
func (t *task) wake(ctx context.Context) (wait time.Duration, done bool, err error) {
	if ctx.Err() != nil {
		return 0, true, nil
	}

	ctx, span := tracer.Start(ctx, "monitor.wake")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", t.userID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "wake failed")
		}
	}()

	user, err := t.svc.store.GetUser(ctx, t.userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	if user.IsDemo {
		return 0, true, nil
	}
	user, err = t.svc.store.EnsureLease(ctx, user)
	if err != nil {
		return 0, false, err
	}

	active, err := t.enforceLeases(ctx, user)
	if err != nil {
		return 0, false, err
	}
	if len(active) == 0 {
		return 0, true, nil
	}

	if t.sources.Fic == nil && t.sources.Moodle == nil {
		t.sources, err = t.svc.factory(t.userID)
		if err != nil {
			return 0, false, fmt.Errorf("create sources: %w", err)
		}
	}

	creds, err := t.svc.store.UserCredentials(ctx, t.userID)
	if err != nil {
		return 0, false, fmt.Errorf("read credentials: %w", err)
	}

	for _, source := range active {
		now := t.svc.time.Now()
		if due, ok := t.due[source]; ok && now.Before(due) {
			continue
		}
		err := t.check(ctx, source, creds)
		if err != nil {
			return 0, false, err
		}
		t.due[source] = now.Add(t.svc.opts.interval(source))
	}

	now := t.svc.time.Now()
	var next time.Time
	for _, source := range active {
		due := t.due[source]
		if next.IsZero() || due.Before(next) {
			next = due
		}
	}
	return max(next.Sub(now), MinSleep), false, nil
}

// enforceLeases switches off expired sources and sends the one-time
// reminder before expiry. It returns the sources still active.
func (t *task) enforceLeases(ctx context.Context, user store.User) ([]db.Source, error) {
	now := t.svc.time.Now()
	leases := t.svc.store.Leases()

	var active []db.Source
	for _, source := range db.Sources {
		lease := user.Lease(source)
		if !lease.Active {
			continue
		}
		leaseDays := int(leases.For(source).Hours() / 24)

		if lease.Expired(now) {
			err := t.svc.store.SetActive(ctx, t.userID, source, false)
			if err != nil {
				return nil, err
			}
			delete(t.due, source)
			t.svc.tel.ReportDebug(report_lease_off, t.userID, source)
			t.send(ctx, notify.AutoOff(source, leaseDays))
			continue
		}

		warn := t.svc.opts.warn(source)
		if !lease.Warned && warn > 0 && lease.Until.Sub(now) <= warn {
			days, ok := lease.DaysLeft(now)
			if ok {
				err := t.svc.store.SetWarned(ctx, t.userID, source, true)
				if err != nil {
					return nil, err
				}
				t.svc.tel.ReportDebug(report_lease_warn, t.userID, source, days)
				t.send(ctx, notify.Reminder(source, days, leaseDays))
			}
		}
		active = append(active, source)
	}
	return active, nil
}

// check captures one source and moves its baseline. Portal failures are
// stored on the source, only store failures are returned.
func (t *task) check(ctx context.Context, source db.Source, creds fetch.Credentials) error {
	ctx, span := tracer.Start(ctx, "monitor.check")
	defer span.End()
	span.SetAttributes(attribute.String("source", string(source)))

	src := t.sources.get(source)
	if src == nil {
		return nil
	}

	capture, err := src.Capture(ctx, creds)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "capture failed")
		t.svc.tel.ReportWarning(report_capture, err, t.userID, source, fetch.KindOf(err).String())
		return t.svc.store.SetError(ctx, t.userID, source, fetch.Localize(err))
	}

	state, err := t.svc.store.GetState(ctx, t.userID, source)
	if err != nil {
		return err
	}
	if state.Hash == "" || state.Hash == capture.Hash {
		return t.svc.store.PutSnapshot(ctx, t.userID, source, capture.Canonical, capture.Hash, nil)
	}

	report, err := src.Report(state.Snapshot, capture.Canonical)
	if err != nil {
		t.svc.tel.ReportWarning(report_report, err, t.userID, source)
		return t.svc.store.PutSnapshot(ctx, t.userID, source, capture.Canonical, capture.Hash, nil)
	}

	err = t.svc.store.PutSnapshot(ctx, t.userID, source, report.Baseline.Canonical, report.Baseline.Hash, report.Recent)
	if err != nil {
		return err
	}
	t.svc.tel.ReportDebug(report_task_poll, t.userID, source, len(report.Recent))
	if report.Message != "" {
		t.send(ctx, report.Message)
	}
	return nil
}

func (t *task) send(ctx context.Context, message string) {
	err := t.svc.notifier.Send(ctx, t.userID, message)
	if err != nil {
		t.svc.tel.ReportWarning(report_notify, err, t.userID)
	}
}
