package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/db"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/keychain"
	"fic-gradebot/internal/notify"
	"fic-gradebot/internal/sources"
	"fic-gradebot/internal/store"
	"fic-gradebot/lib/testutil"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	capture   sources.Capture
	err       error
	panics    bool
	report    sources.Report
	reportErr error
	captures  int
	reports   [][2]string
	closed    bool
}

func (f *fakeSource) Capture(context.Context, fetch.Credentials) (sources.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	if f.panics {
		panic("boom")
	}
	return f.capture, f.err
}

func (f *fakeSource) Report(baseline, current string) (sources.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, [2]string{baseline, current})
	return f.report, f.reportErr
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) captureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Send(_ context.Context, _ int64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

var (
	testLeases = store.Leases{
		Fic:    14 * 24 * time.Hour,
		Moodle: 60 * 24 * time.Hour,
	}
	testOptions = Options{
		FicInterval:    10 * time.Minute,
		MoodleInterval: 20 * time.Minute,
		FicWarn:        24 * time.Hour,
		MoodleWarn:     24 * time.Hour,
	}
)

type fixture struct {
	svc      *Service
	store    store.Store
	clock    *chrono.FakeTime
	fic      *fakeSource
	moodle   *fakeSource
	notifier *fakeNotifier
	tel      *telemetry.Recorder
}

func setup(t *testing.T) fixture {
	res := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "monitor",
		DbSchema: db.Schema,
	})

	key, err := keychain.GenerateKey()
	require.NoError(t, err)
	keys, err := keychain.New(key)
	require.NoError(t, err)

	f := fixture{
		clock: chrono.NewFakeTime(time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)),
		fic: &fakeSource{
			capture: sources.Capture{Canonical: "fic-1", Hash: "h-fic-1"},
		},
		moodle: &fakeSource{
			capture: sources.Capture{Canonical: "moodle-1", Hash: "h-moodle-1"},
		},
		notifier: &fakeNotifier{},
		tel:      &telemetry.Recorder{},
	}
	f.store = store.NewStore(res.DB, keys, testLeases, f.clock, f.tel)

	factory := func(int64) (Sources, error) {
		return Sources{Fic: f.fic, Moodle: f.moodle}, nil
	}
	f.svc = NewService(f.store, factory, f.notifier, testOptions, f.clock, f.tel)
	t.Cleanup(f.svc.Shutdown)

	creds := fetch.Credentials{Username: "jdoe", Password: "hunter2"}
	require.NoError(t, f.store.AddUser(context.Background(), 7, creds, "Jane", false))
	return f
}

func (f fixture) task(userID int64) *task {
	return &task{
		userID: userID,
		svc:    f.svc,
		cancel: func() {},
		done:   make(chan struct{}),
		due:    map[db.Source]time.Time{},
	}
}

func TestFirstCaptureStoresOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tk := f.task(7)

	wait, done, err := tk.wake(ctx)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, testOptions.FicInterval, wait)

	state, err := f.store.GetState(ctx, 7, db.SourceFic)
	require.NoError(t, err)
	require.Equal(t, "h-fic-1", state.Hash)
	require.Equal(t, "fic-1", state.Snapshot)

	state, err = f.store.GetState(ctx, 7, db.SourceMoodle)
	require.NoError(t, err)
	require.Equal(t, "h-moodle-1", state.Hash)

	require.Empty(t, f.notifier.sent())
	require.Empty(t, f.fic.reports)

	// nothing is due yet
	f.clock.Advance(time.Minute)
	wait, _, err = tk.wake(ctx)
	require.NoError(t, err)
	require.Equal(t, 9*time.Minute, wait)
	require.Equal(t, 1, f.fic.captureCount())
	require.Equal(t, 1, f.moodle.captureCount())
}

func TestChangeNotifies(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tk := f.task(7)

	_, _, err := tk.wake(ctx)
	require.NoError(t, err)

	recent := []changes.RecentEvent{{ID: "e1", CourseID: 4401, ItemID: "row_1", Kind: changes.KindNew}}
	f.moodle.set(func(s *fakeSource) {
		s.capture = sources.Capture{Canonical: "moodle-2", Hash: "h-moodle-2"}
		s.report = sources.Report{
			Baseline: sources.Capture{Canonical: "moodle-2b", Hash: "h-moodle-2b"},
			Message:  "📙 <b>Moodle update</b>",
			Recent:   recent,
		}
	})

	// only fic is due after its interval
	f.clock.Advance(testOptions.FicInterval)
	wait, _, err := tk.wake(ctx)
	require.NoError(t, err)
	require.Equal(t, testOptions.MoodleInterval-testOptions.FicInterval, wait)
	require.Equal(t, 2, f.fic.captureCount())
	require.Equal(t, 1, f.moodle.captureCount())
	require.Empty(t, f.fic.reports)

	f.clock.Advance(wait)
	_, _, err = tk.wake(ctx)
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"moodle-1", "moodle-2"}}, f.moodle.reports)
	require.Equal(t, []string{"📙 <b>Moodle update</b>"}, f.notifier.sent())

	state, err := f.store.GetState(ctx, 7, db.SourceMoodle)
	require.NoError(t, err)
	require.Equal(t, "moodle-2b", state.Snapshot)
	require.Equal(t, "h-moodle-2b", state.Hash)
	require.Len(t, state.Recent, 1)
	require.Equal(t, "e1", state.Recent[0].ID)
}

func TestCaptureErrorKeepsBaseline(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tk := f.task(7)

	_, _, err := tk.wake(ctx)
	require.NoError(t, err)

	f.fic.set(func(s *fakeSource) {
		s.capture = sources.Capture{}
		s.err = fetch.Fail(fetch.KindAuthInvalid, errors.New("login rejected"))
	})
	f.clock.Advance(testOptions.FicInterval)
	wait, done, err := tk.wake(ctx)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, testOptions.MoodleInterval-testOptions.FicInterval, wait)

	state, err := f.store.GetState(ctx, 7, db.SourceFic)
	require.NoError(t, err)
	require.Equal(t, "h-fic-1", state.Hash)
	require.Equal(t, "Invalid login or password.", state.LastError)

	// a failed capture still waits a full interval
	f.clock.Advance(time.Minute)
	_, _, err = tk.wake(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.fic.captureCount())

	f.fic.set(func(s *fakeSource) {
		s.capture = sources.Capture{Canonical: "fic-1", Hash: "h-fic-1"}
		s.err = nil
	})
	f.clock.Advance(testOptions.FicInterval)
	_, _, err = tk.wake(ctx)
	require.NoError(t, err)

	state, err = f.store.GetState(ctx, 7, db.SourceFic)
	require.NoError(t, err)
	require.Empty(t, state.LastError)
	require.Empty(t, f.fic.reports)
}

func TestReportErrorStoresCapture(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tk := f.task(7)

	_, _, err := tk.wake(ctx)
	require.NoError(t, err)

	f.fic.set(func(s *fakeSource) {
		s.capture = sources.Capture{Canonical: "fic-2", Hash: "h-fic-2"}
		s.reportErr = errors.New("corrupt baseline")
	})
	f.clock.Advance(testOptions.FicInterval)
	_, _, err = tk.wake(ctx)
	require.NoError(t, err)

	state, err := f.store.GetState(ctx, 7, db.SourceFic)
	require.NoError(t, err)
	require.Equal(t, "h-fic-2", state.Hash)
	require.Empty(t, f.notifier.sent())
	require.Len(t, f.tel.Reports("warning"), 1)
}

func TestLeases(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tk := f.task(7)

	f.clock.Advance(13*24*time.Hour + time.Hour)
	_, done, err := tk.wake(ctx)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, []string{notify.Reminder(db.SourceFic, 1, 14)}, f.notifier.sent())

	user, err := f.store.GetUser(ctx, 7)
	require.NoError(t, err)
	require.True(t, user.Fic.Warned)
	require.False(t, user.Moodle.Warned)

	// the reminder is sent once per lease
	f.clock.Advance(time.Hour)
	_, _, err = tk.wake(ctx)
	require.NoError(t, err)
	require.Len(t, f.notifier.sent(), 1)

	f.clock.Advance(24 * time.Hour)
	_, done, err = tk.wake(ctx)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, notify.AutoOff(db.SourceFic, 14), f.notifier.sent()[1])

	user, err = f.store.GetUser(ctx, 7)
	require.NoError(t, err)
	require.False(t, user.Fic.Active)
	require.True(t, user.Moodle.Active)

	// fic is no longer captured
	captured := f.fic.captureCount()
	f.clock.Advance(time.Hour)
	wait, _, err := tk.wake(ctx)
	require.NoError(t, err)
	require.Equal(t, captured, f.fic.captureCount())
	require.Equal(t, testOptions.MoodleInterval, wait)

	require.NoError(t, f.store.SetActive(ctx, 7, db.SourceMoodle, false))
	_, done, err = tk.wake(ctx)
	require.NoError(t, err)
	require.True(t, done)
}

func TestWakeDone(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, done, err := f.task(404).wake(ctx)
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, f.store.AddUser(ctx, 8, fetch.Credentials{Username: "demo", Password: "demo"}, "Demo", true))
	_, done, err = f.task(8).wake(ctx)
	require.NoError(t, err)
	require.True(t, done)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, done, err = f.task(7).wake(cancelled)
	require.NoError(t, err)
	require.True(t, done)
	require.Zero(t, f.fic.captureCount())
}

func blockingSleep(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestEnsureAndCancel(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.svc.sleep = blockingSleep

	f.svc.Ensure(7)
	f.svc.Ensure(7)
	require.Equal(t, []int64{7}, f.svc.ListActive())

	require.Eventually(t, func() bool {
		return f.moodle.captureCount() == 1
	}, time.Second, 5*time.Millisecond)

	f.svc.Cancel(7)
	require.Empty(t, f.svc.ListActive())
	require.True(t, f.fic.isClosed())
	require.True(t, f.moodle.isClosed())
	require.Equal(t, 1, f.fic.captureCount())

	state, err := f.store.GetState(ctx, 7, db.SourceFic)
	require.NoError(t, err)
	require.Empty(t, state.LastError)

	// cancelling an unknown user is a no-op
	f.svc.Cancel(99)
}

func TestPanicIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.svc.sleep = blockingSleep
	f.fic.set(func(s *fakeSource) { s.panics = true })

	f.svc.Ensure(7)
	require.Eventually(t, func() bool {
		return len(f.svc.ListActive()) == 0
	}, time.Second, 5*time.Millisecond)

	state, err := f.store.GetState(ctx, 7, db.SourceFic)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(state.LastError, "Monitor error: panic: boom"), state.LastError)
	require.True(t, f.fic.isClosed())
	require.Len(t, f.tel.Reports("broken"), 1)
}

func TestResumeAndShutdown(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.svc.sleep = blockingSleep

	require.NoError(t, f.store.AddUser(ctx, 8, fetch.Credentials{Username: "demo", Password: "demo"}, "Demo", true))
	require.NoError(t, f.store.AddUser(ctx, 9, fetch.Credentials{Username: "off", Password: "off"}, "Off", false))
	require.NoError(t, f.store.SetActive(ctx, 9, db.SourceFic, false))
	require.NoError(t, f.store.SetActive(ctx, 9, db.SourceMoodle, false))

	n, err := f.svc.ResumeOnStart(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int64{7}, f.svc.ListActive())

	f.svc.Shutdown()
	require.Empty(t, f.svc.ListActive())

	f.svc.Ensure(7)
	require.Empty(t, f.svc.ListActive())
}
