package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/session"
	"github.com/devadev/deva/internal/ui"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete session records for missing containers",
	Long: `Reconcile the session registry against the engine and delete
records whose container no longer exists. The containers themselves are
never touched.`,
	Args: cobra.NoArgs,
	RunE: pruneSessions,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func pruneSessions(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	sessions := session.NewManager(config.SessionsDir())
	pruned, err := sessions.Prune(cmd.Context(), eng)
	if err != nil {
		return err
	}
	if len(pruned) == 0 {
		fmt.Println("Nothing to prune")
		return nil
	}
	for _, name := range pruned {
		ui.Infof("Pruned %s", name)
	}
	return nil
}
