package commands

import (
	"context"
	"log/slog"

	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/monitor"
	"fic-gradebot/lib/telemetry"
	"fic-gradebot/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var resweep string

func init() {
	serveCmd.Flags().StringVar(&resweep, "resweep", "", "A cron spec to periodically start tasks for monitored users that have none.")
	rootCmd.AddCommand(serveCmd)
}

func monitorFactory(a app) monitor.Factory {
	factory := a.cfg.SourceFactory(a.time, a.tel)
	return func(userID int64) (monitor.Sources, error) {
		fic, moodle, err := factory.For(userID)
		if err != nil {
			return monitor.Sources{}, err
		}
		return monitor.Sources{Fic: fic, Moodle: moodle}, nil
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve [--resweep <cron spec>]",
	Short: "Polls the portals of every monitored user until interrupted.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		err := telemetry.SetupFromEnv(ctx, "gradebot")
		if err != nil {
			serviceutil.Fatal("setup telemetry", err)
		}
		defer telemetry.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		a, err := openApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to start", err)
		}
		defer a.Close()

		notifier, err := a.cfg.Notifier(a.tel)
		if err != nil {
			serviceutil.Fatal("failed to configure notifications", err)
		}

		svc := monitor.NewService(a.store, monitorFactory(a), notifier, a.cfg.MonitorOptions(), a.time, a.tel)
		defer svc.Shutdown()

		n, err := svc.ResumeOnStart(ctx)
		if err != nil {
			serviceutil.Fatal("failed to resume tasks", err)
		}
		slog.Info("resumed monitoring", "users", n)

		if resweep != "" {
			cron := chrono.NewStandardCron(a.tel)
			err = cron.Cron(resweep, func() {
				_, err := svc.ResumeOnStart(ctx)
				if err != nil {
					slog.Warn("resweep failed", "err", err)
				}
			})
			if err != nil {
				serviceutil.Fatal("invalid resweep spec", err)
			}
			defer cron.Stop()
		}

		<-ctx.Done()
		slog.Info("shutting down", "tasks", len(svc.ListActive()))
	},
}
