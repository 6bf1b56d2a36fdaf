// Package claude implements the Claude Code agent.
//
// Methods: "claude" (default, OAuth session under ~/.claude), "api-key"
// (ANTHROPIC_API_KEY), "bedrock" (AWS credentials, STS-preflighted), and
// "vertex" (gcloud ADC). Every non-default method excludes the OAuth
// session file .credentials.json from the mounted config tree.
package claude

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/credential"
)

const (
	methodClaude  = "claude"
	methodAPIKey  = "api-key"
	methodBedrock = "bedrock"
	methodVertex  = "vertex"

	// oauthSessionFile holds the login session for the default method.
	oauthSessionFile = ".credentials.json"
)

// Agent implements agent.Agent for Claude Code.
type Agent struct{}

var _ agent.Agent = (*Agent)(nil)

func init() {
	agent.Register(&Agent{})
}

func (a *Agent) Name() string        { return "claude" }
func (a *Agent) Aliases() []string   { return []string{"anthropic"} }
func (a *Agent) Description() string { return "Claude Code (Anthropic)" }

func (a *Agent) DefaultMethod() string { return methodClaude }

func (a *Agent) Methods() []string {
	return []string{methodClaude, methodAPIKey, methodBedrock, methodVertex}
}

// Credentials returns the per-method credential table. All methods expose
// the claude config tree; bedrock and vertex add their cloud credential
// directories read-only.
func (a *Agent) Credentials(method string) (agent.Credentials, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return agent.Credentials{}, fmt.Errorf("resolving home directory: %w", err)
	}

	configRoots := []agent.Root{
		{Path: filepath.Join(home, ".claude")},
		{Path: filepath.Join(home, ".claude.json")},
	}

	switch method {
	case methodClaude:
		return agent.Credentials{Roots: configRoots}, nil
	case methodAPIKey:
		return agent.Credentials{
			Roots:    configRoots,
			Excluded: []string{oauthSessionFile},
		}, nil
	case methodBedrock:
		return agent.Credentials{
			Roots:    append(configRoots, agent.Root{Path: filepath.Join(home, ".aws"), ReadOnly: true}),
			Excluded: []string{oauthSessionFile},
		}, nil
	case methodVertex:
		return agent.Credentials{
			Roots:    append(configRoots, agent.Root{Path: filepath.Join(home, ".config", "gcloud"), ReadOnly: true}),
			Excluded: []string{oauthSessionFile},
		}, nil
	}
	return agent.Credentials{}, fmt.Errorf("unknown auth method %q", method)
}

// PrepareLaunch sources the method's credentials and builds the container
// command and environment.
func (a *Agent) PrepareLaunch(ctx context.Context, args []string, opts agent.Options) (*agent.Launch, *agent.AuthContext, error) {
	launch := &agent.Launch{
		Argv: append([]string{"claude"}, args...),
	}
	auth := &agent.AuthContext{
		Agent:          a.Name(),
		Method:         opts.Method,
		CredentialFile: opts.CredentialFile,
	}

	switch opts.Method {
	case methodClaude:
		auth.Details = "oauth session"

	case methodAPIKey:
		key, origin, err := credential.APIKey(a.Name(), []string{"ANTHROPIC_API_KEY"}, opts.CredentialFile)
		if err != nil {
			return nil, nil, err
		}
		launch.Env = append(launch.Env, "ANTHROPIC_API_KEY="+key)
		auth.Details = "api key from " + string(origin)

	case methodBedrock:
		region := ""
		if opts.Config != nil {
			region = opts.Config.Bedrock.Region
		}
		arn, err := stsPreflight(ctx, region)
		if err != nil {
			return nil, nil, err
		}
		launch.Env = append(launch.Env, "CLAUDE_CODE_USE_BEDROCK=1")
		if region != "" {
			launch.Env = append(launch.Env, "AWS_REGION="+region)
		}
		auth.Details = "bedrock as " + arn

	case methodVertex:
		if opts.Config == nil || opts.Config.Vertex.Project == "" {
			return nil, nil, fmt.Errorf("vertex auth requires vertex.project in config.yaml")
		}
		launch.Env = append(launch.Env,
			"CLAUDE_CODE_USE_VERTEX=1",
			"ANTHROPIC_VERTEX_PROJECT_ID="+opts.Config.Vertex.Project,
		)
		if opts.Config.Vertex.Region != "" {
			launch.Env = append(launch.Env, "CLOUD_ML_REGION="+opts.Config.Vertex.Region)
		}
		auth.Details = "vertex project " + opts.Config.Vertex.Project

	default:
		return nil, nil, fmt.Errorf("unknown auth method %q", opts.Method)
	}

	return launch, auth, nil
}
