package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/lifecycle"
)

var shellWorkspace string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open a shell in the workspace's container",
	Long: `Open an interactive shell inside the container belonging to the
current workspace. The container must already exist and be running; use an
agent command to create it.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"interactive": "true"},
	RunE:        openShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().StringVar(&shellWorkspace, "workspace", "", "workspace directory (default: current directory)")
}

func openShell(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ws, err := canonicalWorkspace(shellWorkspace)
	if err != nil {
		return lifecycle.Phase(lifecycle.PhaseIdentity, err)
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

	name, err := resolveContainerName(ctx, launcher, ws)
	if err != nil {
		return err
	}

	info, err := eng.FindContainer(ctx, name)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("no container for %s; launch an agent first", ws)
	}
	if !info.Running() {
		if err := eng.Start(ctx, info.ID); err != nil {
			return lifecycle.Phase(lifecycle.PhaseAttach, err)
		}
	}

	res := &lifecycle.Result{Name: name, ID: info.ID, Transition: lifecycle.TransitionAttached}
	return execInContainer(ctx, eng, launcher, res, []string{"/bin/sh", "-lc", "exec ${SHELL:-/bin/bash}"}, ws, nil)
}
