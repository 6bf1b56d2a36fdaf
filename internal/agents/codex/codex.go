// Package codex implements the Codex CLI agent.
//
// Methods: "codex" (default, OAuth session under ~/.codex) and "api-key"
// (OPENAI_API_KEY). The api-key method excludes the OAuth session file
// auth.json from the mounted config tree.
package codex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/credential"
)

const (
	methodCodex  = "codex"
	methodAPIKey = "api-key"

	// oauthSessionFile holds the ChatGPT login for the default method.
	oauthSessionFile = "auth.json"
)

// Agent implements agent.Agent for the Codex CLI.
type Agent struct{}

var _ agent.Agent = (*Agent)(nil)

func init() {
	agent.Register(&Agent{})
}

func (a *Agent) Name() string        { return "codex" }
func (a *Agent) Aliases() []string   { return []string{"openai"} }
func (a *Agent) Description() string { return "Codex CLI (OpenAI)" }

func (a *Agent) DefaultMethod() string { return methodCodex }

func (a *Agent) Methods() []string {
	return []string{methodCodex, methodAPIKey}
}

func (a *Agent) Credentials(method string) (agent.Credentials, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return agent.Credentials{}, fmt.Errorf("resolving home directory: %w", err)
	}
	roots := []agent.Root{{Path: filepath.Join(home, ".codex")}}

	switch method {
	case methodCodex:
		return agent.Credentials{Roots: roots}, nil
	case methodAPIKey:
		return agent.Credentials{
			Roots:    roots,
			Excluded: []string{oauthSessionFile},
		}, nil
	}
	return agent.Credentials{}, fmt.Errorf("unknown auth method %q", method)
}

func (a *Agent) PrepareLaunch(ctx context.Context, args []string, opts agent.Options) (*agent.Launch, *agent.AuthContext, error) {
	launch := &agent.Launch{
		Argv: append([]string{"codex"}, args...),
	}
	auth := &agent.AuthContext{
		Agent:          a.Name(),
		Method:         opts.Method,
		CredentialFile: opts.CredentialFile,
	}

	switch opts.Method {
	case methodCodex:
		auth.Details = "oauth session"

	case methodAPIKey:
		key, origin, err := credential.APIKey(a.Name(), []string{"OPENAI_API_KEY"}, opts.CredentialFile)
		if err != nil {
			return nil, nil, err
		}
		launch.Env = append(launch.Env, "OPENAI_API_KEY="+key)
		auth.Details = "api key from " + string(origin)

	default:
		return nil, nil, fmt.Errorf("unknown auth method %q", opts.Method)
	}

	return launch, auth, nil
}
