package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/engine"
	"github.com/devadev/deva/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the deva environment",
	Long: `Run environment checks: engine reachability, sandbox image
presence, state directory writability, and per-agent credential presence
for each agent's default auth method.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	failed := false

	ui.Section("Engine")
	eng, err := openEngine()
	if err != nil {
		fmt.Printf("  %s cannot connect to Docker: %v\n", ui.FailTag(), err)
		failed = true
	} else {
		defer eng.Close()
		if err := eng.Ping(ctx); err != nil {
			fmt.Printf("  %s engine not responding: %v\n", ui.FailTag(), err)
			failed = true
			eng = nil
		} else {
			fmt.Printf("  %s Docker reachable\n", ui.OKTag())
		}
	}

	ui.Section("Image")
	if eng == nil {
		fmt.Printf("  %s skipped (no engine)\n", ui.WarnTag())
	} else if err := eng.EnsureImage(ctx, cfg.Image, engine.PullNever); err != nil {
		fmt.Printf("  %s %s not present (pulled on first launch)\n", ui.WarnTag(), cfg.Image)
	} else {
		fmt.Printf("  %s %s present\n", ui.OKTag(), cfg.Image)
	}

	ui.Section("State")
	if err := checkWritable(config.Dir()); err != nil {
		fmt.Printf("  %s %s not writable: %v\n", ui.FailTag(), config.Dir(), err)
		failed = true
	} else {
		fmt.Printf("  %s %s writable\n", ui.OKTag(), config.Dir())
	}

	ui.Section("Credentials")
	for _, a := range agent.All() {
		creds, err := a.Credentials(a.DefaultMethod())
		if err != nil {
			fmt.Printf("  %s %s: %v\n", ui.FailTag(), a.Name(), err)
			failed = true
			continue
		}
		present := false
		for _, root := range creds.Roots {
			if _, err := os.Stat(root.Path); err == nil {
				present = true
				break
			}
		}
		if present {
			fmt.Printf("  %s %s (%s)\n", ui.OKTag(), a.Name(), a.DefaultMethod())
		} else {
			fmt.Printf("  %s %s: no credentials for %q (log in on the host first)\n",
				ui.WarnTag(), a.Name(), a.DefaultMethod())
		}
	}

	if failed {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}
