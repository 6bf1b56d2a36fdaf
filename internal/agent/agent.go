// Package agent defines the capability contract between the launcher core
// and the supported coding agents.
//
// The core knows nothing about any agent's flags, credential layout, or
// auth methods: it selects an Agent through the registry, asks it for the
// credential table of the active method, and lets PrepareLaunch contribute
// the in-container command, environment, and auth context. Agent packages
// under internal/agents self-register via init().
package agent

import (
	"context"
	"fmt"

	"github.com/devadev/deva/internal/config"
)

// AuthContext describes the resolved authentication for one invocation.
// Built once by the agent's PrepareLaunch and immutable afterwards.
type AuthContext struct {
	Agent          string `json:"agent"`
	Method         string `json:"method"`
	Details        string `json:"details,omitempty"`
	CredentialFile string `json:"credentialFile,omitempty"`
}

// Default reports whether the context uses the agent's default method.
func (a AuthContext) Default(agent Agent) bool {
	return a.Method == agent.DefaultMethod()
}

// Root is one credential-bearing location on the host, a directory or a
// standalone file. ReadOnly roots stay read-only through every mount the
// composer derives from them.
type Root struct {
	Path     string
	ReadOnly bool
}

// Credentials is an agent's credential table entry for one auth method:
// the roots the method needs exposed, and the file names belonging to
// *other* methods that must never be mounted alongside them.
type Credentials struct {
	Roots    []Root
	Excluded []string
}

// Launch is what an agent contributes to a container launch beyond the
// credential mounts: the process argv, extra environment, and any host
// mappings its auth path requires.
type Launch struct {
	Argv       []string
	Env        []string
	ExtraHosts []string
}

// Options carries the launch-affecting flags and configuration an agent
// sees. Method is already validated and defaulted by the caller.
type Options struct {
	Method         string
	CredentialFile string
	Config         *config.Config
	ContainerName  string
}

// Agent is implemented once per supported coding agent.
type Agent interface {
	// Name returns the canonical agent name, also the CLI subcommand.
	Name() string

	// Aliases returns alternative lookup names, possibly empty.
	Aliases() []string

	// Description is the one-line CLI help text.
	Description() string

	// DefaultMethod returns the auth method used when --auth is absent.
	DefaultMethod() string

	// Methods returns all supported auth methods, default first.
	Methods() []string

	// Credentials returns the credential table for a method.
	Credentials(method string) (Credentials, error)

	// PrepareLaunch resolves credentials for the method (failing fast when
	// they cannot be sourced) and returns the agent's launch contribution.
	PrepareLaunch(ctx context.Context, args []string, opts Options) (*Launch, *AuthContext, error)
}

// ValidateMethod resolves an --auth flag value against an agent. Empty
// input selects the default method.
func ValidateMethod(a Agent, method string) (string, error) {
	if method == "" {
		return a.DefaultMethod(), nil
	}
	for _, m := range a.Methods() {
		if m == method {
			return method, nil
		}
	}
	return "", fmt.Errorf("agent %s does not support auth method %q (supported: %v)",
		a.Name(), method, a.Methods())
}
