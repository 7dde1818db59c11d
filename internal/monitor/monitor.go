// Package monitor runs one polling task per user. A task wakes when one
// of its sources is due, enforces the notification leases, captures the
// due portals and notifies the user about what changed.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/components/assert"
	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/db"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/notify"
	"fic-gradebot/internal/sources"
	"fic-gradebot/internal/store"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("fic-gradebot/internal/monitor")

const (
	report_task_start  = "task.start"
	report_task_exit   = "task.exit"
	report_task_failed = "task.failed"
	report_task_poll   = "task.poll"
	report_capture     = "source.capture"
	report_report      = "source.report"
	report_notify      = "notify.send"
	report_close       = "source.close"
	report_lease_off   = "lease.auto-off"
	report_lease_warn  = "lease.reminder"
)

const (
	// MinInterval is the shortest time between two captures of a source.
	MinInterval = 5 * time.Second
	// MinSleep keeps a task from spinning when a source is overdue.
	MinSleep = time.Second
)

// Source is one portal of a user.
type Source interface {
	Capture(ctx context.Context, creds fetch.Credentials) (sources.Capture, error)
	// Report compares a stored baseline with a fresh capture.
	Report(baseline, current string) (sources.Report, error)
	Close() error
}

// Sources are the portals of one user, created when the task starts.
type Sources struct {
	Fic    Source
	Moodle Source
}

func (s Sources) get(source db.Source) Source {
	if source == db.SourceMoodle {
		return s.Moodle
	}
	return s.Fic
}

// Factory creates the sources of a user.
type Factory func(userID int64) (Sources, error)

// Store is the persistence a task needs, store.Store implements it.
type Store interface {
	Leases() store.Leases
	GetUser(ctx context.Context, userID int64) (store.User, error)
	ListMonitored(ctx context.Context) ([]int64, error)
	EnsureLease(ctx context.Context, user store.User) (store.User, error)
	SetActive(ctx context.Context, userID int64, source db.Source, active bool) error
	SetWarned(ctx context.Context, userID int64, source db.Source, warned bool) error
	UserCredentials(ctx context.Context, userID int64) (fetch.Credentials, error)
	GetState(ctx context.Context, userID int64, source db.Source) (store.State, error)
	PutSnapshot(ctx context.Context, userID int64, source db.Source, canonical, hash string, recent []changes.RecentEvent) error
	SetError(ctx context.Context, userID int64, source db.Source, msg string) error
}

type Options struct {
	FicInterval    time.Duration
	MoodleInterval time.Duration
	// FicWarn and MoodleWarn are how long before expiry a lease reminder
	// is sent, zero disables it.
	FicWarn    time.Duration
	MoodleWarn time.Duration
}

func (o Options) interval(source db.Source) time.Duration {
	d := o.FicInterval
	if source == db.SourceMoodle {
		d = o.MoodleInterval
	}
	return max(d, MinInterval)
}

func (o Options) warn(source db.Source) time.Duration {
	if source == db.SourceMoodle {
		return o.MoodleWarn
	}
	return o.FicWarn
}

// Service owns the task of every monitored user.
type Service struct {
	store    Store
	factory  Factory
	notifier notify.Notifier
	time     chrono.TimeAPI
	tel      telemetry.API
	opts     Options
	// sleep waits between wakes, tests replace it.
	sleep func(ctx context.Context, d time.Duration) error

	ctx  context.Context
	stop context.CancelFunc

	mu    sync.Mutex
	tasks map[int64]*task
}

func NewService(
	store Store,
	factory Factory,
	notifier notify.Notifier,
	opts Options,
	time chrono.TimeAPI,
	tel telemetry.API,
) *Service {
	assert.NotNil(store, "store")
	assert.NotNil(factory, "factory")
	assert.NotNil(notifier, "notifier")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		store:    store,
		factory:  factory,
		notifier: notifier,
		time:     time,
		tel:      telemetry.NewScopedAPI("monitor", tel),
		opts:     opts,
		sleep:    sleep,
		ctx:      ctx,
		stop:     stop,
		tasks:    map[int64]*task{},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ensure starts the task of a user unless one is already running.
func (s *Service) Ensure(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if _, ok := s.tasks[userID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{
		userID: userID,
		svc:    s,
		cancel: cancel,
		done:   make(chan struct{}),
		due:    map[db.Source]time.Time{},
	}
	s.tasks[userID] = t
	s.tel.ReportDebug(report_task_start, userID)
	go t.run(ctx)
}

// Cancel stops the task of a user and waits until it has exited.
func (s *Service) Cancel(userID int64) {
	s.mu.Lock()
	t, ok := s.tasks[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

// ListActive returns the users with a running task in ascending order.
func (s *Service) ListActive() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResumeOnStart starts a task for every user the store says is
// monitored. It is safe to call again later to pick up missed users.
func (s *Service) ResumeOnStart(ctx context.Context) (int, error) {
	ids, err := s.store.ListMonitored(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.Ensure(id)
	}
	return len(ids), nil
}

// Shutdown cancels every task and waits for them to exit. No task starts
// afterwards.
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.stop()
	pending := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		<-t.done
	}
}

func (s *Service) forget(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[t.userID] == t {
		delete(s.tasks, t.userID)
	}
}
