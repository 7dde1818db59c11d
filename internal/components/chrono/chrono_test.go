package chrono

import (
	"errors"
	"testing"
	"time"

	"fic-gradebot/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestFakeTime(t *testing.T) {
	start := time.Date(2025, time.October, 1, 19, 0, 0, 0, time.UTC)
	clock := NewFakeTime(start)
	require.Equal(t, vancouver, clock.Now().Location())
	require.True(t, clock.Now().Equal(start))

	clock.Advance(90 * time.Minute)
	require.True(t, clock.Now().Equal(start.Add(90*time.Minute)))

	clock.Set(start)
	require.True(t, clock.Now().Equal(start))
	require.Equal(t, 12, clock.Now().Hour())
}

func TestCronLogger(t *testing.T) {
	rec := &telemetry.Recorder{}
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", rec)}

	logger.Info("wake", "now", "12:00", "dangling")
	logger.Error(errors.New("boom"), "panic", "stack", "trace")

	debug := rec.Reports("debug")
	require.Len(t, debug, 1)
	require.Equal(t, "cron: wake", debug[0].ID)
	require.Equal(t, []any{"now=12:00"}, debug[0].Params)

	broken := rec.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "cron: job", broken[0].ID)
	require.EqualError(t, broken[0].Params[0].(error), "panic: boom")
}

func TestStandardCronRecovers(t *testing.T) {
	rec := &telemetry.Recorder{}
	c := NewStandardCron(rec)
	defer c.Stop()

	require.Error(t, c.Cron("not a spec", func() {}))

	ran := make(chan struct{}, 4)
	require.NoError(t, c.Cron("@every 1s", func() {
		ran <- struct{}{}
		panic("job exploded")
	}))

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
	require.Eventually(t, func() bool {
		return len(rec.Reports("broken")) > 0
	}, 2*time.Second, 10*time.Millisecond)
}
