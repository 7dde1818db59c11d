package commands

import (
	"context"
	"fmt"
	"os"

	"fic-gradebot/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
)

// version is set at build time with -ldflags "-X ...commands.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "gradebot",
	Short:        "gradebot watches the FIC and Moodle portals and notifies students about new grades.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug reports.")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The config file, <name>.local.json5 is merged over it.")
}

// ExecuteContext runs the command line, exiting with status 1 on error.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
