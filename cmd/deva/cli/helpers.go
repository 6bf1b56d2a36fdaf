package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/engine"
	"github.com/devadev/deva/internal/history"
	"github.com/devadev/deva/internal/identity"
	"github.com/devadev/deva/internal/lifecycle"
	"github.com/devadev/deva/internal/log"
	"github.com/devadev/deva/internal/session"
)

// canonicalWorkspace resolves the workspace path for this invocation: the
// --workspace flag when given, the working directory otherwise, made
// absolute with symlinks resolved. Root is rejected here, before identity
// resolution runs.
func canonicalWorkspace(flagValue string) (string, error) {
	ws := flagValue
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		ws = wd
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return "", fmt.Errorf("resolving workspace path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("workspace %s: %w", abs, err)
	}
	if abs == string(filepath.Separator) {
		return "", fmt.Errorf("refusing to use the filesystem root as a workspace")
	}
	return abs, nil
}

// parseMounts parses "src:dst[:ro|rw]" specs from config and --volume
// flags into one mount list.
func parseMounts(specs []string) ([]*config.Mount, error) {
	var mounts []*config.Mount
	for _, spec := range specs {
		m, err := config.ParseMount(spec)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// openEngine connects to the container engine.
func openEngine() (engine.Engine, error) {
	return engine.NewDocker()
}

// newLauncher wires a lifecycle launcher with the session registry and the
// history log. The history store is best-effort: when it cannot be opened
// the launcher runs without it.
func newLauncher(eng engine.Engine, cfg *config.Config) *lifecycle.Launcher {
	retention := 0
	if cfg != nil {
		retention = cfg.History.RetentionDays
	}
	hist, err := history.Open(config.HistoryPath(), retention)
	if err != nil {
		log.Warn("history log unavailable", "error", err)
		hist = nil
	}
	return lifecycle.New(eng, session.NewManager(config.SessionsDir()), hist)
}

// buildLabels assembles the deva.* label set for a new container.
func buildLabels(id *identity.Identity, agentName, method string, nonDefault bool, branch string) map[string]string {
	labels := map[string]string{
		engine.LabelManaged:       "true",
		engine.LabelWorkspace:     id.Workspace(),
		engine.LabelWorkspaceHash: id.WorkspaceHash,
		engine.LabelSlug:          id.Slug,
		engine.LabelAgent:         agentName,
		engine.LabelEphemeral:     fmt.Sprintf("%t", id.Ephemeral),
	}
	if id.VolumeHash != "" {
		labels[engine.LabelVolumeHash] = id.VolumeHash
	}
	if nonDefault {
		labels[engine.LabelAuth] = method
	}
	if branch != "" {
		labels[engine.LabelGitBranch] = branch
	}
	return labels
}

// buildEnv combines config passthrough variables, --env flags, and the
// agent's own contribution, later entries overriding earlier ones at the
// engine level.
func buildEnv(passthrough, flags, agentEnv []string) []string {
	var env []string
	for _, name := range passthrough {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	for _, kv := range flags {
		if !strings.Contains(kv, "=") {
			// Bare name: pass the host value through.
			if v, ok := os.LookupEnv(kv); ok {
				env = append(env, kv+"="+v)
			}
			continue
		}
		env = append(env, kv)
	}
	env = append(env, agentEnv...)
	return env
}

// resolveContainerName turns a command argument into a container name:
// an explicit name is used as-is; an empty argument resolves the current
// workspace's identity the same way a launch would.
func resolveContainerName(ctx context.Context, l *lifecycle.Launcher, arg string) (string, error) {
	if arg != "" && !strings.HasPrefix(arg, "/") && !strings.HasPrefix(arg, ".") {
		return arg, nil
	}
	ws, err := canonicalWorkspace(arg)
	if err != nil {
		return "", err
	}
	id, err := identity.Resolve(identity.Input{Workspace: ws})
	if err != nil {
		return "", err
	}
	return l.ResolveName(ctx, id)
}
