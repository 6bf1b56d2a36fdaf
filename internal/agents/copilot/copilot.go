// Package copilot implements the GitHub Copilot CLI agent.
//
// Methods: "copilot" (default) and "token" (GH_TOKEN). The default method
// needs a host-side companion proxy that brokers the Copilot OAuth
// exchange; deva starts it, reads its advertised port, and points the
// in-container agent at it over the host gateway. The token method
// excludes the OAuth files hosts.json and apps.json.
package copilot

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/credential"
	"github.com/devadev/deva/internal/log"
)

const (
	methodCopilot = "copilot"
	methodToken   = "token"

	// proxyEnvVar tells the in-container agent where the host proxy
	// listens.
	proxyEnvVar = "DEVA_COPILOT_PROXY"
)

// oauthFiles belong to the default method's GitHub login.
var oauthFiles = []string{"hosts.json", "apps.json"}

// Agent implements agent.Agent for the Copilot CLI.
type Agent struct{}

var _ agent.Agent = (*Agent)(nil)

func init() {
	agent.Register(&Agent{})
}

func (a *Agent) Name() string        { return "copilot" }
func (a *Agent) Aliases() []string   { return []string{"github"} }
func (a *Agent) Description() string { return "Copilot CLI (GitHub)" }

func (a *Agent) DefaultMethod() string { return methodCopilot }

func (a *Agent) Methods() []string {
	return []string{methodCopilot, methodToken}
}

func (a *Agent) Credentials(method string) (agent.Credentials, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return agent.Credentials{}, fmt.Errorf("resolving home directory: %w", err)
	}
	roots := []agent.Root{{Path: filepath.Join(home, ".config", "github-copilot")}}

	switch method {
	case methodCopilot:
		return agent.Credentials{Roots: roots}, nil
	case methodToken:
		return agent.Credentials{
			Roots:    roots,
			Excluded: oauthFiles,
		}, nil
	}
	return agent.Credentials{}, fmt.Errorf("unknown auth method %q", method)
}

func (a *Agent) PrepareLaunch(ctx context.Context, args []string, opts agent.Options) (*agent.Launch, *agent.AuthContext, error) {
	launch := &agent.Launch{
		Argv: append([]string{"copilot"}, args...),
	}
	auth := &agent.AuthContext{
		Agent:          a.Name(),
		Method:         opts.Method,
		CredentialFile: opts.CredentialFile,
	}

	switch opts.Method {
	case methodCopilot:
		command := ""
		if opts.Config != nil {
			command = opts.Config.Copilot.ProxyCommand
		}
		if command == "" {
			command = "deva-copilot-proxy"
		}
		port, err := startProxy(ctx, command, opts.ContainerName)
		if err != nil {
			return nil, nil, err
		}
		launch.Env = append(launch.Env,
			fmt.Sprintf("%s=http://host.docker.internal:%d", proxyEnvVar, port))
		launch.ExtraHosts = append(launch.ExtraHosts, "host.docker.internal:host-gateway")
		auth.Details = fmt.Sprintf("proxy on port %d", port)

	case methodToken:
		key, origin, err := credential.APIKey(a.Name(), []string{"GH_TOKEN", "GITHUB_TOKEN"}, opts.CredentialFile)
		if err != nil {
			return nil, nil, err
		}
		launch.Env = append(launch.Env, "GH_TOKEN="+key)
		auth.Details = "token from " + string(origin)

	default:
		return nil, nil, fmt.Errorf("unknown auth method %q", opts.Method)
	}

	return launch, auth, nil
}

// startProxy starts the host-side proxy and reads the port it advertises
// on its first stdout line. The proxy binary is an external collaborator;
// a missing binary is a fatal error naming the command. Replaceable in
// tests.
var startProxy = func(ctx context.Context, command, containerName string) (int, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return 0, fmt.Errorf("copilot auth requires the %s command on PATH: %w", command, err)
	}

	cmd := exec.CommandContext(ctx, path, containerName)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("wiring %s stdout: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", command, err)
	}

	scanner := bufio.NewScanner(stdout)
	if !scanner.Scan() {
		_ = cmd.Process.Kill()
		return 0, fmt.Errorf("%s exited before advertising a port", command)
	}
	port, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || port <= 0 {
		_ = cmd.Process.Kill()
		return 0, fmt.Errorf("%s advertised an invalid port %q", command, scanner.Text())
	}

	// The proxy outlives this invocation; reap it in the background when
	// it eventually exits.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug("copilot proxy exited", "command", command, "error", err)
		}
	}()

	return port, nil
}
