package chrono

import (
	"fmt"
	"strings"

	"fic-gradebot/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

// CronAPI runs callbacks on a cron schedule.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

// StandardCron schedules with robfig/cron in the Vancouver timezone. A job
// that is still running when its next tick arrives skips that tick, and a
// panicking job is reported instead of crashing the process.
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron starts the scheduler, call Stop to release it.
func NewStandardCron(tel telemetry.API) StandardCron {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	c := cron.New(
		cron.WithLocation(vancouver),
		cron.WithLogger(logger),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)
	c.Start()
	return StandardCron{cron: c}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	if _, err := s.cron.AddFunc(spec, callback); err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return nil
}

// Stop waits for running jobs after unscheduling everything.
func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts cron.Logger to telemetry.API.
type cronLogger struct {
	tel telemetry.API
}

func pairs(keysAndValues []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken("job", fmt.Errorf("%s: %w", msg, err), pairs(keysAndValues))
}
