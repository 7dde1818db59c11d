package commands

import (
	"fmt"

	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/db"
	"fic-gradebot/internal/scrapers/portal"
	"fic-gradebot/internal/snapshot"
	"fic-gradebot/internal/sources"
	"fic-gradebot/lib/restyutil"
	"fic-gradebot/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// courseMatchThreshold is the Jaro-Winkler similarity a --course filter
// needs to select a course.
const courseMatchThreshold = 0.7

var (
	checkSource string
	checkCourse string
	checkDump   string
)

func init() {
	checkCmd.Flags().StringVar(&checkSource, "source", "moodle", "The portal to capture, fic or moodle.")
	checkCmd.Flags().StringVar(&checkCourse, "course", "", "Show the grade items of the Moodle course best matching this name.")
	checkCmd.Flags().StringVar(&checkDump, "dump", "", "Save every page received into this directory.")
	rootCmd.AddCommand(checkCmd)
}

func printFlat(flat snapshot.Flat) {
	t := newTable()
	t.AppendHeader(table.Row{"Term", "Course", "Grade"})
	for _, r := range flat.Records() {
		t.AppendRow(table.Row{r.Term, r.CourseCode, r.Grade})
	}
	t.Render()
}

func printCourses(book snapshot.Gradebook) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Course", "Term", "Grade", "Archived", "Items", "Error"})
	for _, c := range book.Courses {
		t.AppendRow(table.Row{
			c.CourseID,
			changes.CourseLabel(changes.RefOf(c)),
			c.TermLabel,
			c.GradeOverview,
			c.Archived,
			len(c.Items),
			c.Error,
		})
	}
	t.Render()
}

func printItems(course snapshot.Course) {
	t := newTable()
	t.SetTitle("%s", course.Name)
	t.AppendHeader(table.Row{"Category", "Item", "Value", "Feedback"})
	for _, it := range course.Items {
		t.AppendRow(table.Row{
			it.CategoryPath,
			changes.CleanItemName(it.Name),
			changes.DisplayValue(it),
			changes.Snippet(it.Feedback),
		})
	}
	t.Render()
}

var checkCmd = &cobra.Command{
	Use:   "check <user id> [--source fic|moodle] [--course <name>]",
	Short: "Captures a portal once for a user and prints what was found, nothing is stored.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseUserId(args[0])
		if err != nil {
			return err
		}
		source, err := parseSource(checkSource)
		if err != nil {
			return err
		}

		if checkDump != "" {
			output, err := restyutil.NewDirOutput(checkDump)
			if err != nil {
				return err
			}
			portal.SetDumpOutput(output)
		}

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		creds, err := a.store.UserCredentials(ctx, id)
		if err != nil {
			return err
		}
		fic, moodle, err := a.cfg.SourceFactory(a.time, a.tel).For(id)
		if err != nil {
			return err
		}
		defer fic.Close()
		defer moodle.Close()

		var capture sources.Capture
		if source == db.SourceFic {
			capture, err = fic.Capture(ctx, creds)
		} else {
			capture, err = moodle.Capture(ctx, creds)
		}
		if err != nil {
			return fmt.Errorf("capture failed: %s", err)
		}

		if source == db.SourceFic {
			flat, err := snapshot.ParseFlat(capture.Canonical)
			if err != nil {
				return err
			}
			printFlat(flat)
			return nil
		}

		book, err := snapshot.ParseGradebook(capture.Canonical)
		if err != nil {
			return err
		}
		if checkCourse == "" {
			printCourses(book)
			return nil
		}

		names := make([]string, len(book.Courses))
		for i, c := range book.Courses {
			names[i] = c.Name
		}
		i := textutil.BestMatch(checkCourse, names, courseMatchThreshold)
		if i < 0 {
			return fmt.Errorf("no course matches %q", checkCourse)
		}
		printItems(book.Courses[i])
		return nil
	},
}
