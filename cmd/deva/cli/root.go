// Package cli implements the deva command-line interface using Cobra.
// One subcommand per supported agent launches (or reattaches to) the
// workspace's container; the remaining commands inspect and manage the
// containers and their session records.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/log"
	"github.com/devadev/deva/internal/ui"
)

var (
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "deva",
	Short: "deva - workspace-keyed sandbox containers for AI coding agents",
	Long: `deva maps a working directory and a coding agent onto a persistent,
identity-stable container. The same workspace always resolves to the same
container: the first invocation creates it, later ones reattach, and only
the credentials of the active auth method are mounted inside.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.SetColorEnabled(false)
		}

		// Launch commands attach a terminal; keep log lines off it.
		interactive := cmd.Annotations["interactive"] == "true"

		cfg, _ := config.Load()
		retention := 0
		if cfg != nil {
			retention = cfg.History.RetentionDays
		}
		if err := log.Init(log.Options{
			Verbose:       verbose,
			Interactive:   interactive,
			DebugDir:      config.LogsDir(),
			RetentionDays: retention,
		}); err != nil {
			// Debug logging is a convenience, not a requirement.
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not initialize debug logging: %v\n", err)
		}
		return nil
	},
}

// exitError carries an agent process exit code through cobra unchanged.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// Main runs the CLI and returns the process exit code: 0 on success, the
// agent's own exit code when the agent command failed inside a healthy
// container, 1 for every fatal deva error.
func Main() int {
	err := rootCmd.Execute()
	log.Close()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	ui.Errorf("%v", err)
	return 1
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}
