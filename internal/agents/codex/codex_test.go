package codex

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devadev/deva/internal/agent"
)

func TestCredentials(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	a := &Agent{}

	def, err := a.Credentials(methodCodex)
	if err != nil {
		t.Fatal(err)
	}
	if len(def.Excluded) != 0 {
		t.Errorf("default method should exclude nothing, got %v", def.Excluded)
	}
	if def.Roots[0].Path != filepath.Join(home, ".codex") {
		t.Errorf("root = %s", def.Roots[0].Path)
	}

	apiKey, err := a.Credentials(methodAPIKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(apiKey.Excluded) != 1 || apiKey.Excluded[0] != "auth.json" {
		t.Errorf("api-key method must exclude auth.json, got %v", apiKey.Excluded)
	}

	if _, err := a.Credentials("sso"); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestPrepareLaunch_Default(t *testing.T) {
	launch, auth, err := (&Agent{}).PrepareLaunch(context.Background(), []string{"--full-auto"}, agent.Options{Method: methodCodex})
	if err != nil {
		t.Fatal(err)
	}
	if len(launch.Argv) != 2 || launch.Argv[0] != "codex" || launch.Argv[1] != "--full-auto" {
		t.Errorf("argv = %v", launch.Argv)
	}
	if auth.Method != methodCodex {
		t.Errorf("auth method = %s", auth.Method)
	}
}

func TestPrepareLaunch_APIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DEVA_HOME", t.TempDir())

	launch, auth, err := (&Agent{}).PrepareLaunch(context.Background(), nil, agent.Options{Method: methodAPIKey})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range launch.Env {
		if e == "OPENAI_API_KEY=sk-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("key not injected, env = %v", launch.Env)
	}
	if !strings.Contains(auth.Details, "env") {
		t.Errorf("details = %s", auth.Details)
	}
}

func TestPrepareLaunch_APIKeyMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DEVA_HOME", t.TempDir())
	t.Setenv("DEVA_KEYRING_SERVICE", "deva-test-absent")

	if _, _, err := (&Agent{}).PrepareLaunch(context.Background(), nil, agent.Options{Method: methodAPIKey}); err == nil {
		t.Fatal("expected error when no key can be sourced")
	}
}
