// Package gemini implements the Gemini CLI agent.
//
// Methods: "gemini" (default, Google OAuth under ~/.gemini) and "api-key"
// (GEMINI_API_KEY). The api-key method excludes both OAuth files from the
// mounted config tree; settings and extensions stay visible.
package gemini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/credential"
)

const (
	methodGemini = "gemini"
	methodAPIKey = "api-key"
)

// oauthFiles are the Google login artifacts of the default method.
var oauthFiles = []string{"oauth_creds.json", "google_accounts.json"}

// Agent implements agent.Agent for the Gemini CLI.
type Agent struct{}

var _ agent.Agent = (*Agent)(nil)

func init() {
	agent.Register(&Agent{})
}

func (a *Agent) Name() string        { return "gemini" }
func (a *Agent) Aliases() []string   { return []string{"google"} }
func (a *Agent) Description() string { return "Gemini CLI (Google)" }

func (a *Agent) DefaultMethod() string { return methodGemini }

func (a *Agent) Methods() []string {
	return []string{methodGemini, methodAPIKey}
}

func (a *Agent) Credentials(method string) (agent.Credentials, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return agent.Credentials{}, fmt.Errorf("resolving home directory: %w", err)
	}
	roots := []agent.Root{{Path: filepath.Join(home, ".gemini")}}

	switch method {
	case methodGemini:
		return agent.Credentials{Roots: roots}, nil
	case methodAPIKey:
		return agent.Credentials{
			Roots:    roots,
			Excluded: oauthFiles,
		}, nil
	}
	return agent.Credentials{}, fmt.Errorf("unknown auth method %q", method)
}

func (a *Agent) PrepareLaunch(ctx context.Context, args []string, opts agent.Options) (*agent.Launch, *agent.AuthContext, error) {
	launch := &agent.Launch{
		Argv: append([]string{"gemini"}, args...),
	}
	auth := &agent.AuthContext{
		Agent:          a.Name(),
		Method:         opts.Method,
		CredentialFile: opts.CredentialFile,
	}

	switch opts.Method {
	case methodGemini:
		auth.Details = "oauth session"

	case methodAPIKey:
		key, origin, err := credential.APIKey(a.Name(), []string{"GEMINI_API_KEY"}, opts.CredentialFile)
		if err != nil {
			return nil, nil, err
		}
		launch.Env = append(launch.Env, "GEMINI_API_KEY="+key)
		auth.Details = "api key from " + string(origin)

	default:
		return nil, nil, fmt.Errorf("unknown auth method %q", opts.Method)
	}

	return launch, auth, nil
}
