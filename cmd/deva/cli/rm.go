package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/session"
	"github.com/devadev/deva/internal/ui"
)

var (
	rmAll   bool
	rmForce bool
)

var rmCmd = &cobra.Command{
	Use:     "rm [container]",
	Aliases: []string{"remove"},
	Short:   "Remove a workspace container",
	Long: `Remove a managed container and its session record.

Without an argument the current workspace's container is removed. Running
containers are refused unless --force is given. --all removes every
managed container.`,
	Args: cobra.MaximumNArgs(1),
	RunE: removeContainer,
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVar(&rmAll, "all", false, "remove every managed container")
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "remove even if running")
}

func removeContainer(cmd *cobra.Command, args []string) error {
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

	if rmAll {
		records, err := launcher.Sessions.Reconcile(ctx, eng)
		if err != nil {
			return err
		}
		removed := 0
		for _, r := range records {
			if r.Status == session.StatusRemoved {
				continue
			}
			if err := launcher.Remove(ctx, r.Container, rmForce); err != nil {
				return fmt.Errorf("removing %s: %w", r.Container, err)
			}
			ui.Infof("Removed %s", r.Container)
			removed++
		}
		if removed == 0 {
			fmt.Println("No containers to remove")
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
	if err := launcher.Remove(ctx, name, rmForce); err != nil {
		return err
	}
	ui.Infof("Removed %s", name)
	return nil
}
