package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/engine"
	"github.com/devadev/deva/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status [container|workspace]",
	Short: "Show one container in detail",
	Long: `Show a managed container's identity, auth, and engine state.

Accepts a container name or a workspace path; without an argument the
current workspace's container is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
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

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	name, err := resolveContainerName(ctx, launcher, arg)
	if err != nil {
		return err
	}

	info, err := eng.FindContainer(ctx, name)
	if err != nil {
		return err
	}
	rec, recErr := launcher.Sessions.Get(name)

	if info == nil && recErr != nil {
		return fmt.Errorf("no container named %s", name)
	}

	ui.Section(name)
	if info != nil {
		fmt.Printf("  State:      %s\n", stateTag(info))
		fmt.Printf("  Image:      %s\n", info.Image)
		if ws := info.Labels[engine.LabelWorkspace]; ws != "" {
			fmt.Printf("  Workspace:  %s\n", ws)
		}
		if branch := info.Labels[engine.LabelGitBranch]; branch != "" {
			fmt.Printf("  Branch:     %s\n", branch)
		}
		fmt.Printf("  Created:    %s\n", formatAge(info.Created))
	} else {
		fmt.Printf("  State:      %s\n", ui.Dim("removed"))
	}
	if recErr == nil {
		fmt.Printf("  Agent:      %s\n", rec.Agent)
		fmt.Printf("  Auth:       %s\n", rec.Auth.Method)
		if rec.Auth.Details != "" {
			fmt.Printf("  Details:    %s\n", rec.Auth.Details)
		}
		fmt.Printf("  Last seen:  %s\n", formatAge(rec.LastSeen))
		if rec.Ephemeral {
			fmt.Printf("  Ephemeral:  yes (pid %d)\n", rec.PID)
		}
	}
	return nil
}

func stateTag(info *engine.Info) string {
	if info.Running() {
		return ui.Green(info.State)
	}
	return ui.Yellow(info.State)
}
