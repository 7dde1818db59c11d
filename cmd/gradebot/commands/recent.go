package commands

import (
	"fic-gradebot/internal/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var recentLimit int

func init() {
	recentCmd.Flags().IntVar(&recentLimit, "limit", 20, "The number of events to show.")
	rootCmd.AddCommand(recentCmd)
}

var recentCmd = &cobra.Command{
	Use:   "recent <user id> [--limit <n>]",
	Short: "Prints the latest Moodle changes recorded for a user, newest first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseUserId(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.store.GetState(ctx, id, db.SourceMoodle)
		if err != nil {
			return err
		}

		events := state.Recent
		if recentLimit > 0 && len(events) > recentLimit {
			events = events[:recentLimit]
		}

		t := newTable()
		t.AppendHeader(table.Row{"When", "Course", "Term", "Item", "Kind", "Value", "Feedback"})
		for _, ev := range events {
			t.AppendRow(table.Row{
				formatTime(ev.At),
				ev.CourseCode,
				ev.TermLabel,
				ev.ItemName,
				ev.Kind,
				ev.NewValue,
				ev.FeedbackSnippet,
			})
		}
		t.AppendFooter(table.Row{"Updated", formatTime(state.RecentAt)})
		t.Render()
		return nil
	},
}
