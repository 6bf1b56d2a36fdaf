package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/session"
	"github.com/devadev/deva/internal/ui"
)

var stopAll bool

var stopCmd = &cobra.Command{
	Use:   "stop [container]",
	Short: "Stop a workspace container",
	Long: `Stop a managed container by name.

Without an argument the current workspace's container is stopped.
--all stops every running managed container.`,
	Args: cobra.MaximumNArgs(1),
	RunE: stopContainer,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().BoolVar(&stopAll, "all", false, "stop every running managed container")
}

func stopContainer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	launcher := newLauncher(eng, cfg)
	if launcher.History != nil {
		defer launcher.History.Close()
	}
	ctx := cmd.Context()

	if stopAll {
		records, err := launcher.Sessions.Reconcile(ctx, eng)
		if err != nil {
			return err
		}
		stopped := 0
		for _, r := range records {
			if r.Status != session.StatusRunning {
				continue
			}
			if err := launcher.Stop(ctx, r.Container); err != nil {
				return fmt.Errorf("stopping %s: %w", r.Container, err)
			}
			ui.Infof("Stopped %s", r.Container)
			stopped++
		}
		if stopped == 0 {
			fmt.Println("No running containers")
		}
		return nil
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	name, err := resolveContainerName(ctx, launcher, arg)
	if err != nil {
		return err
	}
	if err := launcher.Stop(ctx, name); err != nil {
		return err
	}
	ui.Infof("Stopped %s", name)
	return nil
}
