package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/engine"
	"github.com/devadev/deva/internal/gitinfo"
	"github.com/devadev/deva/internal/identity"
	"github.com/devadev/deva/internal/lifecycle"
	"github.com/devadev/deva/internal/log"
	"github.com/devadev/deva/internal/mounts"
	"github.com/devadev/deva/internal/ui"
)

// launchFlags are the per-launch options shared by every agent command.
type launchFlags struct {
	auth           string
	credentialFile string
	image          string
	workspace      string
	pull           string
	volumes        []string
	envs           []string
	ports          []string
	ephemeral      bool
}

// RegisterAgentCommands adds one launch subcommand per registered agent.
// Called from main after the agent packages' init() registration ran.
func RegisterAgentCommands() {
	for _, a := range agent.All() {
		rootCmd.AddCommand(newAgentCommand(a))
	}
}

func newAgentCommand(a agent.Agent) *cobra.Command {
	flags := &launchFlags{}
	cmd := &cobra.Command{
		Use:   a.Name() + " [flags] [-- agent-args...]",
		Short: "Launch " + a.Description() + " in this workspace's container",
		Long: fmt.Sprintf(`Launch %s inside the container belonging to the current workspace.

The first invocation creates the container; later invocations reattach to
it. Arguments after -- are passed to the agent unchanged.

Auth methods: %v (default %q).`,
			a.Description(), a.Methods(), a.DefaultMethod()),
		Aliases:     a.Aliases(),
		Args:        cobra.ArbitraryArgs,
		Annotations: map[string]string{"interactive": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), a, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.auth, "auth", "", "auth method (default: "+a.DefaultMethod()+")")
	cmd.Flags().StringVar(&flags.credentialFile, "credential-file", "", "file containing the API key for key-based auth methods")
	cmd.Flags().StringVar(&flags.image, "image", "", "container image (default from config)")
	cmd.Flags().StringVar(&flags.workspace, "workspace", "", "workspace directory (default: current directory)")
	cmd.Flags().StringVar(&flags.pull, "pull", "", "image pull policy: missing, always, never (default missing)")
	cmd.Flags().StringArrayVar(&flags.volumes, "volume", nil, "extra mount src:dst[:ro|rw] (repeatable)")
	cmd.Flags().StringArrayVar(&flags.envs, "env", nil, "extra environment K=V or K to pass through (repeatable)")
	cmd.Flags().StringArrayVar(&flags.ports, "publish", nil, "port mapping host:container on 127.0.0.1 (repeatable)")
	cmd.Flags().BoolVar(&flags.ephemeral, "ephemeral", false, "single-use container, removed when the agent exits")
	return cmd
}

func runLaunch(ctx context.Context, a agent.Agent, args []string, flags *launchFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ws, err := canonicalWorkspace(flags.workspace)
	if err != nil {
		return lifecycle.Phase(lifecycle.PhaseIdentity, err)
	}
	method, err := agent.ValidateMethod(a, flags.auth)
	if err != nil {
		return err
	}
	pull, err := engine.ParsePullPolicy(flags.pull)
	if err != nil {
		return err
	}
	extra, err := parseMounts(append(append([]string{}, cfg.Mounts...), flags.volumes...))
	if err != nil {
		return lifecycle.Phase(lifecycle.PhaseMount, err)
	}

	id, err := identity.Resolve(identity.Input{
		Workspace:      ws,
		Mounts:         extra,
		Method:         method,
		DefaultMethod:  a.DefaultMethod(),
		CredentialFile: flags.credentialFile,
		Ephemeral:      flags.ephemeral,
		PID:            os.Getpid(),
	})
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

	name, err := launcher.ResolveName(ctx, id)
	if err != nil {
		return err
	}
	log.SetContainer(name)

	launch, auth, err := a.PrepareLaunch(ctx, args, agent.Options{
		Method:         method,
		CredentialFile: flags.credentialFile,
		Config:         cfg,
		ContainerName:  name,
	})
	if err != nil {
		return lifecycle.Phase(lifecycle.PhaseMount, err)
	}

	git, err := gitinfo.Detect(ws)
	if err != nil {
		log.Warn("git detection failed", "workspace", ws, "error", err)
	}

	plan, err := mounts.Compose(mounts.Options{
		Agent:     a,
		Method:    method,
		Workspace: ws,
		Extra:     extra,
		GitDir:    git.MainGitDir,
	})
	if err != nil {
		return lifecycle.Phase(lifecycle.PhaseMount, err)
	}

	image := cfg.Image
	if flags.image != "" {
		image = flags.image
	}

	spec := lifecycle.Spec{
		Identity:   id,
		Name:       name,
		Agent:      a.Name(),
		Image:      image,
		Pull:       pull,
		Mounts:     plan,
		Env:        buildEnv(cfg.Env, flags.envs, launch.Env),
		Labels:     buildLabels(id, a.Name(), method, method != a.DefaultMethod(), git.Branch),
		Command:    launch.Argv,
		Ports:      flags.ports,
		ExtraHosts: launch.ExtraHosts,
		Auth:       *auth,
	}

	res, err := launcher.Ensure(ctx, spec)
	if err != nil {
		return err
	}

	if id.Ephemeral {
		return runEphemeral(ctx, eng, res)
	}

	switch res.Transition {
	case lifecycle.TransitionCreated:
		ui.Infof("Created container %s", ui.Bold(res.Name))
	case lifecycle.TransitionStarted:
		ui.Infof("Restarted container %s", ui.Bold(res.Name))
	}
	return execInContainer(ctx, eng, launcher, res, launch.Argv, ws, spec.Env)
}
