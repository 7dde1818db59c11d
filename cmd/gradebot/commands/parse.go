package commands

import (
	"fmt"
	"os"

	"fic-gradebot/internal/keychain"
	"fic-gradebot/internal/scrapers/fic"
	"fic-gradebot/internal/scrapers/moodle"
	"fic-gradebot/internal/snapshot"

	"github.com/spf13/cobra"
)

var parseEmptyGrade string

func init() {
	parseCmd.Flags().StringVar(&parseEmptyGrade, "empty-grade", "", "Replaces blank grade cells.")
	rootCmd.AddCommand(parseCmd, keygenCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <results|overview|report> <file.html>",
	Short: "Runs an extractor over a saved page and prints its canonical JSON.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		html := string(raw)

		var value any
		switch args[0] {
		case "results":
			value = fic.ParseResults(html, parseEmptyGrade)
		case "overview":
			value = moodle.ParseOverview(html, parseEmptyGrade)
		case "report":
			value = moodle.ParseReport(html)
		default:
			return fmt.Errorf("unknown page kind %q", args[0])
		}

		canonical, err := snapshot.Normalize(value)
		if err != nil {
			return err
		}
		fmt.Println(canonical)
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Prints a new keychain key.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := keychain.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}
